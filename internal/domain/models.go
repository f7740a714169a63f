package domain

type RecordingStatus string

const (
	StatusUploaded     RecordingStatus = "uploaded"
	StatusTranscribing RecordingStatus = "transcribing"
	StatusTranscribed  RecordingStatus = "transcribed"
	StatusSummarizing  RecordingStatus = "summarizing"
	StatusCompleted    RecordingStatus = "completed"
	StatusError        RecordingStatus = "error"
)

type SummaryType string

const (
	SummaryGeneral   SummaryType = "general"
	SummaryMeeting   SummaryType = "meeting"
	SummaryLecture   SummaryType = "lecture"
	SummaryInterview SummaryType = "interview"
	SummaryMemo      SummaryType = "memo"
)

func (t SummaryType) Valid() bool {
	switch t {
	case SummaryGeneral, SummaryMeeting, SummaryLecture, SummaryInterview, SummaryMemo:
		return true
	}
	return false
}

type Recording struct {
	ID          string          `json:"id"`
	FileURL     string          `json:"file_url"`
	FileName    string          `json:"file_name"`
	FilePath    string          `json:"file_path"`
	FileSize    int64           `json:"file_size"`
	MimeType    string          `json:"mime_type"`
	Title       string          `json:"title,omitempty"`
	Duration    float64         `json:"duration,omitempty"`
	Status      RecordingStatus `json:"status"`
	Transcript  string          `json:"transcript,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	SummaryType SummaryType     `json:"summary_type,omitempty"`
	KeyPoints   []string        `json:"key_points,omitempty"`
	ExtraData   map[string]any  `json:"extra_data,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}

type RecordingPage struct {
	Items    []Recording `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

type TranscriptionResult struct {
	RecordingID string          `json:"recording_id"`
	Transcript  string          `json:"transcript"`
	Status      RecordingStatus `json:"status"`
}

type SummaryResult struct {
	RecordingID string          `json:"recording_id"`
	Summary     string          `json:"summary"`
	SummaryType SummaryType     `json:"summary_type"`
	KeyPoints   []string        `json:"key_points"`
	ExtraData   map[string]any  `json:"extra_data,omitempty"`
	Status      RecordingStatus `json:"status"`
}
