package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultMemberName = "Anonymous"
	maxMemberNameLen  = 32
)

type Member struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// NewMember binds a stable session token to a display name. The name is
// free text; empty names get the placeholder.
func NewMember(token, name string) (*Member, error) {
	if token == "" {
		return nil, ErrInvalidInput
	}

	return &Member{
		Token: token,
		Name:  NormalizeName(name),
	}, nil
}

func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultMemberName
	}
	if utf8.RuneCountInString(name) > maxMemberNameLen {
		name = string([]rune(name)[:maxMemberNameLen])
	}
	return name
}
