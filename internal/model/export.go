package model

import "time"

// QuizExport is the top-level JSON structure for quiz result export.
type QuizExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Count      int          `json:"count"`
	Results    []QuizResult `json:"results"`
}

// QuizResult holds one scored quiz session.
type QuizResult struct {
	ID           string       `json:"id"`
	Surface      string       `json:"surface"`
	Questions    []Question   `json:"questions"`
	Answers      map[int]int  `json:"answers"`
	CorrectCount int          `json:"correct_count"`
	Total        int          `json:"total"`
	Percent      int          `json:"percent"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	Items        []ResultItem `json:"items,omitempty"`
}

// ResultItem holds per-question data for export.
type ResultItem struct {
	QuestionID int          `json:"question_id"`
	Kind       QuestionKind `json:"kind"`
	Keyword    string       `json:"keyword"`
	Chosen     int          `json:"chosen"`
	Correct    bool         `json:"correct"`
}
