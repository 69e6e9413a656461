package api

import "encoding/json"

// User identifies the end user on an issue report. All fields optional.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Viewport is the reporting browser's viewport size.
type Viewport struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Meta is captured page context attached to an issue report.
type Meta struct {
	URL          string          `json:"url"`
	Route        string          `json:"route"`
	Timestamp    int64           `json:"ts"`
	Locale       string          `json:"locale,omitempty"`
	Viewport     Viewport        `json:"viewport"`
	UserAgent    string          `json:"ua,omitempty"`
	AppVersion   string          `json:"appVersion,omitempty"`
	Release      string          `json:"release,omitempty"`
	FeatureFlags map[string]bool `json:"featureFlags,omitempty"`
}

// ConsoleLog is one captured console entry.
type ConsoleLog struct {
	Level     string `json:"level"` // error, warn, info, log
	Message   string `json:"message"`
	Timestamp int64  `json:"ts"`
	Stack     string `json:"stack,omitempty"`
}

// NetworkLog is one sampled network request.
type NetworkLog struct {
	URL        string `json:"url"`
	Method     string `json:"method"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  int64  `json:"ts"`
}

// FormData is the user-entered part of an issue report.
type FormData struct {
	Summary  string `json:"summary"`
	Steps    string `json:"steps,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Severity string `json:"severity,omitempty"` // low, medium, high, critical
	Category string `json:"category,omitempty"`
}

// IssueReport is the payload for SubmitIssue. Attachments are not carried
// here; they go through the signed-URL upload flow.
type IssueReport struct {
	PublishableKey string                     `json:"publishableKey"`
	User           *User                      `json:"user,omitempty"`
	Meta           Meta                       `json:"meta"`
	Console        []ConsoleLog               `json:"console,omitempty"`
	Network        []NetworkLog               `json:"network,omitempty"`
	Custom         map[string]json.RawMessage `json:"custom,omitempty"`
	Form           FormData                   `json:"form"`
}

// ChatHistoryMessage is one chat turn handed to the triage endpoint.
type ChatHistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// TriageFormData is the form prefill suggested by triage.
type TriageFormData struct {
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Steps       string `json:"steps,omitempty"`
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Category    string `json:"category,omitempty"`
}

// TriageMeta describes how the triage suggestion was produced.
type TriageMeta struct {
	MessageCount int    `json:"message_count,omitempty"`
	TriageSource string `json:"triage_source,omitempty"`
	Confidence   string `json:"confidence,omitempty"`
}

// TriageResponse is returned by GenerateIssuePrefill.
type TriageResponse struct {
	FormData      TriageFormData `json:"form_data"`
	SuggestedMeta *TriageMeta    `json:"suggested_meta,omitempty"`
}

// FileMetadata describes a file for which an upload slot is requested.
type FileMetadata struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// UploadSlot is one signed-URL upload target returned by PrepareUploads.
type UploadSlot struct {
	UploadURL   string            `json:"upload_url"`
	UploadToken string            `json:"upload_token"`
	GCSPath     string            `json:"gcs_path"`
	ExpiresIn   int               `json:"expires_in"`
	MaxSize     int64             `json:"max_size"`
	FileType    string            `json:"file_type"` // image or video
	Headers     map[string]string `json:"headers,omitempty"`
}

// VerifiedAttachment is one attachment confirmed by VerifyAttachments.
type VerifiedAttachment struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
}
