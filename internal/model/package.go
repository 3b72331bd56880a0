package model

// PackageGroup is the academic track an exam package belongs to.
type PackageGroup string

const (
	PackageGroupScience  PackageGroup = "SCIENCE"
	PackageGroupArts     PackageGroup = "ARTS"
	PackageGroupCommerce PackageGroup = "COMMERCE"
	PackageGroupGeneral  PackageGroup = "GENERAL"
)

// Package groups exams under an academic track.
type Package struct {
	ID          string       `json:"id" binding:"required"`
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description,omitempty"`
	Group       PackageGroup `json:"group" binding:"omitempty,oneof=SCIENCE ARTS COMMERCE GENERAL"`
	ExamCount   int          `json:"examCount,omitempty"`
}

// CreatePackageRequest is the payload for creating a package.
type CreatePackageRequest struct {
	Name        string       `json:"name" binding:"required,min=3,max=120"`
	Description string       `json:"description" binding:"omitempty,max=1000"`
	Group       PackageGroup `json:"group" binding:"required,oneof=SCIENCE ARTS COMMERCE GENERAL"`
}
