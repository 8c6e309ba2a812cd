package model

import "time"

// Book is a catalog title with a fixed number of physical copies.
type Book struct {
	ID          string
	Title       string
	Author      string
	Genre       string
	Rating      int
	CoverURL    string
	CoverColor  string
	Description string
	VideoURL    string
	Summary     string
	// Fixed at creation. 0 <= AvailableCopies <= TotalCopies.
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
}

// LentCopies returns the number of copies currently out on loan.
func (b *Book) LentCopies() int {
	return b.TotalCopies - b.AvailableCopies
}
