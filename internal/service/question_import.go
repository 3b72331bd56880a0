package service

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/freeexam/examdesk/internal/model"
	"github.com/freeexam/examdesk/internal/validator"
)

// Import errors.
var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrEmptyImport     = errors.New("no question rows found")
	ErrInvalidOptions  = errors.New("a question needs exactly one correct option")
)

// optionColumns are the spreadsheet columns holding options, in letter order.
var optionColumns = []string{"option_a", "option_b", "option_c", "option_d", "option_e", "option_f"}

type importRow struct {
	row      int
	question model.CreateQuestionRequest
	err      error
}

// ValidateQuestion checks a question's fields and that exactly one option is correct.
func ValidateQuestion(q *model.CreateQuestionRequest) error {
	if err := validator.Struct(q); err != nil {
		return err
	}
	if q.CorrectCount() != 1 {
		return ErrInvalidOptions
	}
	return nil
}

// BuildImport parses an uploaded question file and validates every row.
// It returns the valid questions and a report covering all rows.
func BuildImport(name string, r io.Reader) ([]model.CreateQuestionRequest, *model.ImportReport, error) {
	rows, err := parseQuestionFile(name, r)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, ErrEmptyImport
	}

	report := &model.ImportReport{Errors: make([]model.ImportRowError, 0)}
	valid := make([]model.CreateQuestionRequest, 0, len(rows))
	for _, row := range rows {
		report.TotalRows++
		err := row.err
		if err == nil {
			err = ValidateQuestion(&row.question)
		}
		if err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, model.ImportRowError{Row: row.row, Error: describe(err)})
			continue
		}
		report.SuccessRows++
		valid = append(valid, row.question)
	}
	return valid, report, nil
}

// describe flattens validation errors into one line.
func describe(err error) string {
	if errors.Is(err, ErrInvalidOptions) {
		return err.Error()
	}
	fields := validator.TranslateErrors(err)
	if detail, ok := fields["detail"]; ok && len(fields) == 1 {
		return detail
	}
	parts := make([]string, 0, len(fields))
	for _, msg := range fields {
		parts = append(parts, msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func parseQuestionFile(name string, r io.Reader) ([]importRow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return parseXLSX(r)
	case ".yaml", ".yml", ".json":
		return parseYAML(r)
	default:
		return nil, ErrUnsupportedFile
	}
}

// parseXLSX reads the first sheet. Row 1 is a header with at least text,
// option_a, option_b and correct; correct is an option letter (A-F) or 1-6.
func parseXLSX(r io.Reader) ([]importRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptyImport
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"text", "option_a", "option_b", "correct"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	out := make([]importRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		q, err := questionFromRow(get)
		out = append(out, importRow{row: i + 1, question: q, err: err})
	}
	return out, nil
}

func questionFromRow(get func(string) string) (model.CreateQuestionRequest, error) {
	q := model.CreateQuestionRequest{
		Text:        get("text"),
		Explanation: get("explanation"),
		Difficulty:  strings.ToUpper(get("difficulty")),
		Subject:     get("subject"),
		Topic:       get("topic"),
		Marks:       1,
	}

	if raw := get("marks"); raw != "" {
		marks, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, fmt.Errorf("marks %q is not a number", raw)
		}
		q.Marks = marks
	}

	correct, err := correctIndex(get("correct"))
	if err != nil {
		return q, err
	}
	for i, col := range optionColumns {
		text := get(col)
		if text == "" {
			if i == correct {
				return q, fmt.Errorf("correct option %s is empty", strings.ToUpper(col[len(col)-1:]))
			}
			continue
		}
		q.Options = append(q.Options, model.OptionInput{Text: text, IsCorrect: i == correct})
	}
	return q, nil
}

func correctIndex(raw string) (int, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if len(raw) == 1 && raw[0] >= 'A' && raw[0] < 'A'+byte(len(optionColumns)) {
		return int(raw[0] - 'A'), nil
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(optionColumns) {
		return n - 1, nil
	}
	return 0, fmt.Errorf("correct %q must be a letter A-%c or 1-%d", raw, 'A'+len(optionColumns)-1, len(optionColumns))
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseYAML accepts a YAML or JSON document that is either a list of
// questions or an object with a "questions" list.
func parseYAML(r io.Reader) ([]importRow, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, ErrEmptyImport
	}

	list := doc.Content[0]
	if list.Kind == yaml.MappingNode {
		list = nil
		for i := 0; i+1 < len(doc.Content[0].Content); i += 2 {
			if doc.Content[0].Content[i].Value == "questions" {
				list = doc.Content[0].Content[i+1]
				break
			}
		}
	}
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil, errors.New(`file must be a list of questions or contain a "questions" list`)
	}

	out := make([]importRow, 0, len(list.Content))
	for i, item := range list.Content {
		var q model.CreateQuestionRequest
		err := item.Decode(&q)
		if err != nil {
			err = fmt.Errorf("decode question: %w", err)
		}
		out = append(out, importRow{row: i + 1, question: q, err: err})
	}
	return out, nil
}
