package model

import (
	"context"
	"time"
)

// Profile is the accessibility-conversion target selected by the user.
type Profile string

const (
	// ProfileVisual converts text to speech.
	ProfileVisual Profile = "visual"
	// ProfileHearing converts text to a sign-language video.
	ProfileHearing Profile = "hearing"
	// ProfileBraille converts text to braille.
	ProfileBraille Profile = "braille"
)

// Valid reports whether p names a known profile.
func (p Profile) Valid() bool {
	switch p {
	case ProfileVisual, ProfileHearing, ProfileBraille:
		return true
	}
	return false
}

// ResultKind discriminates the payload of a ConversionResult.
type ResultKind string

const (
	ResultAudio     ResultKind = "audio"
	ResultSignVideo ResultKind = "sign_video"
	ResultBraille   ResultKind = "braille"
)

// AudioStatus is the playback state of a speech conversion.
type AudioStatus string

const (
	AudioPlaying AudioStatus = "playing"
	AudioStopped AudioStatus = "stopped"
)

// ConversionRequest is one user action on the conversion tool.
type ConversionRequest struct {
	SourceText string  `json:"source_text"`
	Profile    Profile `json:"profile"`
}

// ConversionResult holds exactly one payload matching Kind.
type ConversionResult struct {
	Kind      ResultKind       `json:"kind"`
	Token     uint64           `json:"token"`
	Audio     *AudioResult     `json:"audio,omitempty"`
	SignVideo *SignVideoResult `json:"sign_video,omitempty"`
	Braille   *BrailleResult   `json:"braille,omitempty"`
}

// AudioResult reports speech playback state.
type AudioResult struct {
	Status AudioStatus `json:"status"`
}

// SignVideoResult partitions the input words against the sign asset table.
// ResolvedWords and UnresolvedWords keep input order and duplicates.
type SignVideoResult struct {
	ResolvedWords   []string `json:"resolved_words"`
	UnresolvedWords []string `json:"unresolved_words"`
	VideoURL        string   `json:"video_url,omitempty"`
	Demo            bool     `json:"demo"`
}

// BrailleResult carries transliterated braille text.
type BrailleResult struct {
	Text string `json:"text"`
}

// QuestionKind is the question format.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindTrueFalse      QuestionKind = "true_false"
)

// Question is a generated quiz question. IDs are 1-based in generation order.
type Question struct {
	ID                 int          `json:"id"`
	Prompt             string       `json:"prompt"`
	Options            []string     `json:"options"`
	CorrectOptionIndex int          `json:"correct_option_index"`
	Kind               QuestionKind `json:"kind"`
	Keyword            string       `json:"keyword"`
}

// QuizState is the lifecycle state of a quiz session.
type QuizState string

const (
	QuizEmpty       QuizState = "empty"
	QuizGenerating  QuizState = "generating"
	QuizReady       QuizState = "ready"
	QuizAnswering   QuizState = "answering"
	QuizSubmittable QuizState = "submittable"
	QuizScored      QuizState = "scored"
)

// QuizSnapshot is a read-only copy of a quiz session.
type QuizSnapshot struct {
	State        QuizState   `json:"state"`
	Questions    []Question  `json:"questions"`
	Answers      map[int]int `json:"answers"`
	Scored       bool        `json:"scored"`
	CorrectCount int         `json:"correct_count"`
}

// QuizOutcome is the frozen result of submitting a session.
type QuizOutcome struct {
	CorrectCount int `json:"correct_count"`
	Total        int `json:"total"`
	Percent      int `json:"percent"`
}

// Role represents a chat message role.
type Role string

const (
	RoleStudent   Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a study-assistant conversation.
type ChatMessage struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// PerformanceReport is the LLM's analysis of a student's answers.
type PerformanceReport struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
	LearningPlan    string   `json:"learningPlan"`
}

// SignAsset maps a word to a sign-language video reference.
type SignAsset struct {
	Word string `json:"word"`
	Ref  string `json:"ref"`
}

// ConversionRecord is one logged conversion attempt.
type ConversionRecord struct {
	ID        int64     `json:"id"`
	Surface   string    `json:"surface"`
	Token     uint64    `json:"token"`
	Profile   Profile   `json:"profile"`
	InputLen  int       `json:"input_len"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRole controls access to the admin API.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"  // may change sign assets and users
	RoleViewer UserRole = "viewer" // read-only access to logs and results
)

// User is an admin-API account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ServerConfig holds runtime service parameters set via CLI flags.
type ServerConfig struct {
	BasePath       string // URL prefix for sub-path deployments
	SecureCookies  bool
	CookieSecret   string
	LLMRatePerMin  int // per-client limit on LLM-backed routes
	AllowedOrigins []string
}

type surfaceCtxKey struct{}

// ContextWithSurface stores the UI surface id in the request context.
func ContextWithSurface(ctx context.Context, surface string) context.Context {
	return context.WithValue(ctx, surfaceCtxKey{}, surface)
}

// SurfaceFromContext retrieves the surface id, or "" if not set.
func SurfaceFromContext(ctx context.Context) string {
	s, _ := ctx.Value(surfaceCtxKey{}).(string)
	return s
}

type userCtxKey struct{}

// ContextWithUser stores the authenticated admin-API user in context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
