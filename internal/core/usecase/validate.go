package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

var dateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006", "January 2, 2006", "2 January 2006"}

var yesWords = map[string]bool{"yes": true, "y": true, "true": true, "да": true, "ага": true}
var noWords = map[string]bool{"no": true, "n": true, "false": true, "нет": true}

// validateInput checks raw user input against the condition's type and
// optional validation rule. It returns the normalized value to store, or
// an error whose message is safe to show to the user as a re-prompt.
func validateInput(cond domain.ConditionNode, raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		if cond.DefaultValue != "" {
			return cond.DefaultValue, nil
		}
		return "", fmt.Errorf("a value is required")
	}

	switch cond.ConditionType {
	case domain.ConditionSelectOne:
		return matchOption(cond.Options, input)

	case domain.ConditionSelectMulti:
		parts := strings.Split(input, ",")
		values := make([]string, 0, len(parts))
		for _, part := range parts {
			value, err := matchOption(cond.Options, strings.TrimSpace(part))
			if err != nil {
				return "", err
			}
			values = append(values, value)
		}
		return strings.Join(values, ","), nil

	case domain.ConditionYesNo:
		lowered := strings.ToLower(input)
		if yesWords[lowered] {
			return "yes", nil
		}
		if noWords[lowered] {
			return "no", nil
		}
		return "", fmt.Errorf("please answer yes or no")

	case domain.ConditionDateInput:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, input); err == nil {
				return parsed.Format("2006-01-02"), nil
			}
		}
		return "", fmt.Errorf("could not read %q as a date, try YYYY-MM-DD", input)

	case domain.ConditionNumberInput:
		normalized := strings.ReplaceAll(input, ",", ".")
		if _, err := strconv.ParseFloat(normalized, 64); err != nil {
			return "", fmt.Errorf("%q is not a number", input)
		}
		return validateRule(cond, normalized)

	default:
		// text_input and auto_extract fallthrough: free text, rule only.
		return validateRule(cond, input)
	}
}

func validateRule(cond domain.ConditionNode, value string) (string, error) {
	if cond.ValidationRule == "" {
		return value, nil
	}
	re, err := regexp.Compile(cond.ValidationRule)
	if err != nil {
		// A broken authored rule must not dead-end the conversation.
		return value, nil
	}
	if !re.MatchString(value) {
		return "", fmt.Errorf("the value does not match the expected format")
	}
	return value, nil
}

// matchOption resolves input against the option list: exact value match
// first, then case-insensitive label match.
func matchOption(options []domain.Option, input string) (string, error) {
	if len(options) == 0 {
		return input, nil
	}
	for _, opt := range options {
		if opt.Value == input {
			return opt.Value, nil
		}
	}
	lowered := strings.ToLower(input)
	for _, opt := range options {
		if strings.ToLower(opt.Label) == lowered {
			return opt.Value, nil
		}
	}
	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = opt.Label
	}
	return "", fmt.Errorf("pick one of: %s", strings.Join(labels, ", "))
}
