// dto.go maps domain models to the JSON shapes of the API.
package handlers

import (
	"time"

	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/service"
)

// Response and request bodies of the JSON API.

type userDTO struct {
	ID               string    `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	UniversityID     int       `json:"university_id"`
	UniversityCard   string    `json:"university_card"`
	Status           string    `json:"status"`
	Role             string    `json:"role"`
	LastActivityDate time.Time `json:"last_activity_date"`
	CreatedAt        time.Time `json:"created_at"`
}

type bookDTO struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	Rating          int       `json:"rating"`
	CoverURL        string    `json:"cover_url"`
	CoverColor      string    `json:"cover_color"`
	Description     string    `json:"description"`
	VideoURL        string    `json:"video_url"`
	Summary         string    `json:"summary"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

type borrowRecordDTO struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	BookID     string     `json:"book_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

type recordUserDTO struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	UniversityID int    `json:"university_id"`
	Status       string `json:"status"`
}

type recordBookDTO struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	Genre           string `json:"genre"`
	CoverURL        string `json:"cover_url"`
	CoverColor      string `json:"cover_color"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

type recordItemDTO struct {
	borrowRecordDTO
	IsOverdue   bool          `json:"is_overdue"`
	DaysOverdue int           `json:"days_overdue"`
	User        recordUserDTO `json:"user"`
	Book        recordBookDTO `json:"book"`
}

type pageDTO[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

type sessionDTO struct {
	User      userDTO   `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type overdueDTO struct {
	RecordID    string    `json:"record_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	UserEmail   string    `json:"user_email"`
	BookID      string    `json:"book_id"`
	BookTitle   string    `json:"book_title"`
	DueDate     time.Time `json:"due_date"`
	DaysOverdue int       `json:"days_overdue"`
}

type dashboardDTO struct {
	UsersByStatus   map[string]int     `json:"users_by_status"`
	Books           service.BookTotals `json:"books"`
	BorrowsByStatus map[string]int     `json:"borrows_by_status"`
	RecentPending   []userDTO          `json:"recent_pending_users"`
	Overdue         []overdueDTO       `json:"overdue"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

// --- Mapping ---

func mapUser(u *model.User) userDTO {
	return userDTO{
		ID:               u.ID,
		FullName:         u.FullName,
		Email:            u.Email,
		UniversityID:     u.UniversityID,
		UniversityCard:   u.UniversityCard,
		Status:           string(u.Status),
		Role:             string(u.Role),
		LastActivityDate: u.LastActivityDate,
		CreatedAt:        u.CreatedAt,
	}
}

func mapBook(b *model.Book) bookDTO {
	return bookDTO{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Genre:           b.Genre,
		Rating:          b.Rating,
		CoverURL:        b.CoverURL,
		CoverColor:      b.CoverColor,
		Description:     b.Description,
		VideoURL:        b.VideoURL,
		Summary:         b.Summary,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt,
	}
}

func mapBooks(books []*model.Book) []bookDTO {
	out := make([]bookDTO, len(books))
	for i, b := range books {
		out[i] = mapBook(b)
	}
	return out
}

func mapBorrowRecord(rec *model.BorrowRecord) borrowRecordDTO {
	return borrowRecordDTO{
		ID:         rec.ID,
		UserID:     rec.UserID,
		BookID:     rec.BookID,
		BorrowDate: rec.BorrowDate,
		DueDate:    rec.DueDate,
		ReturnDate: rec.ReturnDate,
		Status:     string(rec.Status),
		CreatedAt:  rec.CreatedAt,
	}
}

func mapRecordItem(it service.RecordItem) recordItemDTO {
	d := it.BorrowRecordDetail
	return recordItemDTO{
		borrowRecordDTO: mapBorrowRecord(&d.BorrowRecord),
		IsOverdue:       it.IsOverdue,
		DaysOverdue:     it.DaysOverdue,
		User: recordUserDTO{
			FullName:     d.UserFullName,
			Email:        d.UserEmail,
			UniversityID: d.UserUniversityID,
			Status:       string(d.UserStatus),
		},
		Book: recordBookDTO{
			Title:           d.BookTitle,
			Author:          d.BookAuthor,
			Genre:           d.BookGenre,
			CoverURL:        d.BookCoverURL,
			CoverColor:      d.BookCoverColor,
			TotalCopies:     d.BookTotalCopies,
			AvailableCopies: d.BookAvailableCopies,
		},
	}
}

func mapRecordItems(items []service.RecordItem) []recordItemDTO {
	out := make([]recordItemDTO, len(items))
	for i, it := range items {
		out[i] = mapRecordItem(it)
	}
	return out
}

// mapPage converts a service page item by item.
func mapPage[T, D any](p *service.Paginated[T], f func(T) D) pageDTO[D] {
	items := make([]D, len(p.Items))
	for i, it := range p.Items {
		items[i] = f(it)
	}
	return pageDTO[D]{
		Items:      items,
		Total:      p.Total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: p.TotalPages,
	}
}

func mapSession(s *service.Session) sessionDTO {
	return sessionDTO{
		User:      mapUser(s.User),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

func mapDashboard(s *service.DashboardSnapshot) dashboardDTO {
	out := dashboardDTO{
		UsersByStatus:   make(map[string]int, len(s.UsersByStatus)),
		Books:           s.Books,
		BorrowsByStatus: make(map[string]int, len(s.BorrowsByStatus)),
		RecentPending:   make([]userDTO, len(s.RecentPending)),
		Overdue:         make([]overdueDTO, len(s.Overdue)),
		GeneratedAt:     s.GeneratedAt,
	}
	for st, n := range s.UsersByStatus {
		out.UsersByStatus[string(st)] = n
	}
	for st, n := range s.BorrowsByStatus {
		out.BorrowsByStatus[string(st)] = n
	}
	for i, u := range s.RecentPending {
		out.RecentPending[i] = mapUser(u)
	}
	for i, o := range s.Overdue {
		out.Overdue[i] = overdueDTO{
			RecordID:    o.RecordID,
			UserID:      o.UserID,
			UserName:    o.UserName,
			UserEmail:   o.UserEmail,
			BookID:      o.BookID,
			BookTitle:   o.BookTitle,
			DueDate:     o.DueDate,
			DaysOverdue: o.DaysOverdue,
		}
	}
	return out
}
