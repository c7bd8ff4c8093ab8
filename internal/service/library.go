package service

import (
	"regexp"
	"strings"

	"github.com/xxxsen/famlearn/internal/model"
)

var unsafeSegment = regexp.MustCompile(`[/\\?%*:|"<>\x00-\x1f]`)

// safeSegment turns s into one path element of a store key.
func safeSegment(s, fallback string) string {
	s = strings.TrimSpace(unsafeSegment.ReplaceAllString(s, "-"))
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}

// Users maps owner ids to display names.
type Users map[string]string

func (u Users) Name(ownerID string) string {
	if name, ok := u[ownerID]; ok && name != "" {
		return name
	}
	if name, ok := u[model.SharedOwner]; ok && name != "" {
		return name
	}
	return ownerID
}

func (u Users) Known(ownerID string) bool {
	_, ok := u[ownerID]
	return ok
}
