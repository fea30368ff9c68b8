// Package prompts renders the system prompts sent to the text-generation
// endpoint. Templates are embedded and may be overridden from a directory.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var embedded embed.FS

const (
	chatFile    = "templates/chat.txt"
	analyzeFile = "templates/analyze.txt"

	// MaxStudentRunes caps student text placed into a prompt.
	MaxStudentRunes = 10000
)

var (
	studentAnswersRegex     = regexp.MustCompile(`(?i)</?\s*student-answers\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// ChatData holds template data for the study-assistant prompt.
type ChatData struct {
	Subject string
}

// AnalyzeData holds template data for the performance-analysis prompt.
type AnalyzeData struct {
	Subject string
	Answers string
}

// Set is a parsed pair of prompt templates.
type Set struct {
	chat    *template.Template
	analyze *template.Template
}

// Default returns the embedded templates.
func Default() *Set {
	s, err := Load(embedded)
	if err != nil {
		panic(err)
	}
	return s
}

// Load parses templates/chat.txt and templates/analyze.txt from fsys.
func Load(fsys fs.FS) (*Set, error) {
	chat, err := parse(fsys, chatFile)
	if err != nil {
		return nil, err
	}
	analyze, err := parse(fsys, analyzeFile)
	if err != nil {
		return nil, err
	}
	return &Set{chat: chat, analyze: analyze}, nil
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildChatPrompt renders the study-assistant system prompt.
func (s *Set) BuildChatPrompt(subject string) (string, error) {
	return execute(s.chat, ChatData{Subject: strings.TrimSpace(Sanitize(subject, ""))})
}

// BuildAnalyzePrompt renders the analysis prompt around the student's answers.
func (s *Set) BuildAnalyzePrompt(subject, answers string) (string, error) {
	return execute(s.analyze, AnalyzeData{
		Subject: Sanitize(subject, "عامة"),
		Answers: Sanitize(answers, "[لا توجد إجابات]"),
	})
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Sanitize strips prompt delimiter tags from student text and caps its
// length. Blank input becomes placeholder.
func Sanitize(text, placeholder string) string {
	text = studentAnswersRegex.ReplaceAllString(text, "")
	text = systemInstructionsRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if text == "" {
		return placeholder
	}

	if utf8.RuneCountInString(text) > MaxStudentRunes {
		runes := []rune(text)
		text = string(runes[:MaxStudentRunes]) + "\n\n[تم اقتطاع النص لطوله]"
	}

	return text
}
