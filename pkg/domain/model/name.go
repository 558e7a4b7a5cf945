package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const (
	firstNameSuffix = 2
	lastNameSuffix  = 99
)

var (
	forbiddenNameChars = regexp.MustCompile(`[@#<>§▒{};*]`)
	nameSuffix         = regexp.MustCompile(` \([0-9]+\)$`)
)

// SanitizeName replaces characters the destination rejects with '_' and drops
// a trailing " (n)" disambiguation suffix so suffixes never pile up.
func SanitizeName(name string) string {
	name = forbiddenNameChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	name = nameSuffix.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// UniqueTeamName returns the sanitized name, or the first "name (n)" with
// n in 2..99 that does not collide with taken. Team names are unique on the
// destination regardless of case.
func UniqueTeamName(name string, taken []string) (string, error) {
	cleaned := SanitizeName(name)

	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[strings.ToLower(t)] = struct{}{}
	}

	if _, ok := used[strings.ToLower(cleaned)]; !ok {
		return cleaned, nil
	}
	for i := firstNameSuffix; i <= lastNameSuffix; i++ {
		candidate := fmt.Sprintf("%s (%d)", cleaned, i)
		if _, ok := used[strings.ToLower(candidate)]; !ok {
			return candidate, nil
		}
	}

	return "", goerr.Wrap(ErrTeamNameExhausted, "failed to generate a unique team name",
		goerr.V("name", name))
}
