package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EpochYear is the earliest accepted year.
const EpochYear = 2000

// ValidationError collects every rule a record or upload breaks.
type ValidationError struct {
	Messages []string
}

func NewValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Messages: msgs}
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, ". ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

// NormalizeRecord trims the free-text and enumerated fields in place.
func NormalizeRecord(rec *MediaRecord) {
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.Category = strings.TrimSpace(rec.Category)
	rec.Section = strings.TrimSpace(rec.Section)
	rec.Year = strings.TrimSpace(rec.Year)
}

// ApplyDefaults fills unset optional fields with the kind's defaults.
func ApplyDefaults(rec *MediaRecord, now time.Time) {
	spec := rec.Kind.Spec()
	if rec.Category == "" {
		rec.Category = spec.DefaultCategory
	}
	if rec.Section == "" {
		rec.Section = spec.DefaultSection
	}
	if rec.Year == "" {
		rec.Year = strconv.Itoa(now.Year())
	}
	if !spec.HasCompleted {
		rec.Completed = false
	}
}

// ValidateRecord checks rec against its kind's enumerations and bounds and
// returns a *ValidationError listing every violation, or nil.
func ValidateRecord(rec *MediaRecord, now time.Time) error {
	spec := rec.Kind.Spec()
	verr := &ValidationError{}

	switch {
	case rec.Title == "":
		verr.add("Title is required")
	case len([]rune(rec.Title)) > spec.TitleMax:
		verr.add("Title cannot exceed %d characters", spec.TitleMax)
	}

	if len([]rune(rec.Description)) > spec.DescriptionMax {
		verr.add("Description cannot exceed %d characters", spec.DescriptionMax)
	}

	switch {
	case rec.Category == "" && spec.CategoryRequired:
		verr.add("Category is required")
	case rec.Category != "" && !spec.allowsCategory(rec.Category):
		verr.add("Category must be one of: %s", strings.Join(spec.Categories, ", "))
	}

	if !spec.allowsSection(rec.Section) {
		verr.add("Section must be one of: %s", strings.Join(spec.Sections, ", "))
	}

	if msg := checkYear(rec.Year, now); msg != "" {
		verr.add("%s", msg)
	}

	if len(verr.Messages) > 0 {
		return verr
	}
	return nil
}

func checkYear(year string, now time.Time) string {
	if len(year) != 4 || strings.Trim(year, "0123456789") != "" {
		return "Year must be a 4-digit number"
	}
	n, _ := strconv.Atoi(year)
	if n < EpochYear {
		return fmt.Sprintf("Year must be %d or later", EpochYear)
	}
	if n > now.Year() {
		return "Year cannot be in the future"
	}
	return ""
}
