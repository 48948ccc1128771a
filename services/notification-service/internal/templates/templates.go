// Package templates renders customer messages from a YAML template set.
package templates

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/slotwise/slotwise/libs/events"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

var ErrUnknownKind = errors.New("templates: unknown message kind")

// Kinds every template set must cover.
var Kinds = []string{
	events.MessageRescheduleProposed,
	events.MessageRescheduleConfirmed,
	events.MessageRescheduleDeclined,
	events.MessageCancelled,
	events.MessageBookingConfirmed,
}

type file struct {
	Templates map[string]entry `yaml:"templates" validate:"required,dive"`
}

type entry struct {
	Subject string `yaml:"subject" validate:"required"`
	Body    string `yaml:"body" validate:"required"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

type Set struct {
	byKind map[string]compiled
}

// Message is a rendered template. Channels without a subject ignore it.
type Message struct {
	Subject string
	Body    string
}

func Default() (*Set, error) {
	return Parse(defaultYAML)
}

// Load reads path, or returns the embedded set when path is empty.
func Load(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("templates: yaml: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	s := &Set{byKind: make(map[string]compiled, len(f.Templates))}
	for kind, e := range f.Templates {
		subject, err := template.New(kind + ".subject").Option("missingkey=error").Parse(e.Subject)
		if err != nil {
			return nil, fmt.Errorf("templates: %s subject: %w", kind, err)
		}
		body, err := template.New(kind + ".body").Option("missingkey=error").Parse(e.Body)
		if err != nil {
			return nil, fmt.Errorf("templates: %s body: %w", kind, err)
		}
		s.byKind[kind] = compiled{subject: subject, body: body}
	}
	for _, kind := range Kinds {
		if _, ok := s.byKind[kind]; !ok {
			return nil, fmt.Errorf("templates: missing %q", kind)
		}
	}
	return s, nil
}

func (s *Set) Render(kind string, data events.TemplateData) (Message, error) {
	c, ok := s.byKind[kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("templates: render %s: %w", kind, err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("templates: render %s: %w", kind, err)
	}
	return Message{
		Subject: strings.TrimSpace(subject.String()),
		Body:    strings.TrimSpace(body.String()),
	}, nil
}
