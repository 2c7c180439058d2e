package services

import (
	"strings"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/models"
)

// RolePolicy picks the role a new account starts with. Exact email rules win
// over domain rules; anything unmatched is a plain user.
type RolePolicy struct {
	byEmail  map[string]models.Role
	byDomain map[string]models.Role
}

// NewRolePolicy builds a policy from configured rules.
func NewRolePolicy(rules []config.RoleRule) *RolePolicy {
	p := &RolePolicy{byEmail: map[string]models.Role{}, byDomain: map[string]models.Role{}}
	for _, r := range rules {
		role := models.Role(r.Role)
		if !role.Valid() {
			continue
		}
		if r.Email != "" {
			p.byEmail[normalizeEmail(r.Email)] = role
		}
		if r.Domain != "" {
			p.byDomain[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.Domain), "@"))] = role
		}
	}
	return p
}

// InitialRole returns the role for a newly registered email.
func (p *RolePolicy) InitialRole(email string) models.Role {
	if p == nil {
		return models.RoleUser
	}
	email = normalizeEmail(email)
	if role, ok := p.byEmail[email]; ok {
		return role
	}
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		if role, ok := p.byDomain[email[at+1:]]; ok {
			return role
		}
	}
	return models.RoleUser
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
