package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/libranet/apiserver/internal/store"
	"github.com/libranet/apiserver/types"
)

func newestFirst(aCreated time.Time, aID int, bCreated time.Time, bID int) int {
	if c := bCreated.Compare(aCreated); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}

type userRepo struct {
	store *Store
	exec  execFunc
}

func (r *userRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	var user types.User
	err := r.exec(func(st *state) error {
		found, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		user = found
		return nil
	})
	return user, err
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := r.exec(func(st *state) error {
		for _, found := range st.users {
			if found.Email == email {
				user = found
				return nil
			}
		}
		return store.ErrNotFound
	})
	return user, err
}

func (r *userRepo) List(ctx context.Context) ([]types.User, error) {
	var users []types.User
	err := r.exec(func(st *state) error {
		users = make([]types.User, 0, len(st.users))
		for _, user := range st.users {
			users = append(users, user)
		}
		slices.SortFunc(users, func(a, b types.User) int {
			return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
		})
		return nil
	})
	return users, err
}

func (r *userRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	err := r.exec(func(st *state) error {
		for _, existing := range st.users {
			if existing.Email == user.Email {
				return &store.ConflictError{Constraint: store.ConstraintUserEmail}
			}
			if existing.LibraryCardNumber == user.LibraryCardNumber {
				return &store.ConflictError{Constraint: store.ConstraintUserCardNumber}
			}
		}
		now := time.Now()
		user.ID = st.id()
		user.CreatedAt = now
		user.UpdatedAt = now
		st.users[user.ID] = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *userRepo) MarkVerified(ctx context.Context, id int) error {
	return r.exec(func(st *state) error {
		if err := r.store.fail(OpMarkVerified); err != nil {
			return err
		}
		user, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		user.IsVerified = true
		user.UpdatedAt = time.Now()
		st.users[id] = user
		return nil
	})
}

type otpRepo struct {
	store *Store
	exec  execFunc
}

func (r *otpRepo) Create(ctx context.Context, otp types.OTPVerification) (types.OTPVerification, error) {
	err := r.exec(func(st *state) error {
		if _, ok := st.users[otp.UserID]; !ok {
			return store.ErrNotFound
		}
		otp.ID = st.id()
		otp.CreatedAt = time.Now()
		st.otps[otp.ID] = otp
		return nil
	})
	if err != nil {
		return types.OTPVerification{}, err
	}
	return otp, nil
}

func (r *otpRepo) FindValid(ctx context.Context, userID int, code string, now time.Time) (types.OTPVerification, error) {
	var (
		best  types.OTPVerification
		found bool
	)
	err := r.exec(func(st *state) error {
		for _, otp := range st.otps {
			if otp.UserID != userID || otp.Code != code || !otp.Valid(now) {
				continue
			}
			if !found || newestFirst(otp.CreatedAt, otp.ID, best.CreatedAt, best.ID) < 0 {
				best = otp
				found = true
			}
		}
		if !found {
			return store.ErrNotFound
		}
		return nil
	})
	return best, err
}

func (r *otpRepo) Consume(ctx context.Context, id int) error {
	return r.exec(func(st *state) error {
		if err := r.store.fail(OpConsumeOTP); err != nil {
			return err
		}
		otp, ok := st.otps[id]
		if !ok || otp.Consumed {
			return store.ErrNotFound
		}
		otp.Consumed = true
		st.otps[id] = otp
		return nil
	})
}

func (r *otpRepo) InvalidateForUser(ctx context.Context, userID int) error {
	return r.exec(func(st *state) error {
		for id, otp := range st.otps {
			if otp.UserID == userID && !otp.Consumed {
				otp.Consumed = true
				st.otps[id] = otp
			}
		}
		return nil
	})
}

type categoryRepo struct {
	exec execFunc
}

func (r *categoryRepo) GetByKey(ctx context.Context, key string) (types.Category, error) {
	var category types.Category
	err := r.exec(func(st *state) error {
		for _, found := range st.categories {
			if found.Key == key {
				category = found
				return nil
			}
		}
		return store.ErrNotFound
	})
	return category, err
}

func (r *categoryRepo) Create(ctx context.Context, category types.Category) (types.Category, error) {
	err := r.exec(func(st *state) error {
		for _, existing := range st.categories {
			if existing.Key == category.Key {
				return &store.ConflictError{Constraint: store.ConstraintCategoryKey}
			}
		}
		category.ID = st.id()
		st.categories[category.ID] = category
		return nil
	})
	if err != nil {
		return types.Category{}, err
	}
	return category, nil
}

func (r *categoryRepo) List(ctx context.Context) ([]types.CategorySummary, error) {
	var summaries []types.CategorySummary
	err := r.exec(func(st *state) error {
		counts := make(map[int]int)
		for _, book := range st.books {
			counts[book.CategoryID]++
		}
		summaries = make([]types.CategorySummary, 0, len(st.categories))
		for _, category := range st.categories {
			summaries = append(summaries, types.CategorySummary{Category: category, BookCount: counts[category.ID]})
		}
		slices.SortFunc(summaries, func(a, b types.CategorySummary) int {
			return cmp.Compare(a.Name, b.Name)
		})
		return nil
	})
	return summaries, err
}

type bookRepo struct {
	store *Store
	exec  execFunc
}

func withCategory(st *state, book types.Book) types.Book {
	if category, ok := st.categories[book.CategoryID]; ok {
		book.Category = &category
	}
	return book
}

func (r *bookRepo) List(ctx context.Context, filter types.BookFilter) ([]types.Book, error) {
	var books []types.Book
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	err := r.exec(func(st *state) error {
		books = make([]types.Book, 0)
		for _, book := range st.books {
			book = withCategory(st, book)
			if filter.CategoryKey != "" && (book.Category == nil || book.Category.Key != filter.CategoryKey) {
				continue
			}
			if query != "" && !strings.Contains(strings.ToLower(book.Title), query) && !strings.Contains(strings.ToLower(book.Author), query) {
				continue
			}
			books = append(books, book)
		}
		slices.SortFunc(books, func(a, b types.Book) int {
			if c := cmp.Compare(a.Title, b.Title); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		return nil
	})
	return books, err
}

func (r *bookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	var book types.Book
	err := r.exec(func(st *state) error {
		found, ok := st.books[id]
		if !ok {
			return store.ErrNotFound
		}
		book = withCategory(st, found)
		return nil
	})
	return book, err
}

func (r *bookRepo) GetForUpdate(ctx context.Context, id int) (types.Book, error) {
	return r.Get(ctx, id)
}

func (r *bookRepo) GetByISBN(ctx context.Context, isbn string) (types.Book, error) {
	var book types.Book
	err := r.exec(func(st *state) error {
		for _, found := range st.books {
			if found.ISBN == isbn {
				book = withCategory(st, found)
				return nil
			}
		}
		return store.ErrNotFound
	})
	return book, err
}

func checkCopies(book types.Book) error {
	if book.AvailableCopies < 0 || book.AvailableCopies > book.TotalCopies {
		return errCopiesCheck
	}
	return nil
}

func (r *bookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	err := r.exec(func(st *state) error {
		for _, existing := range st.books {
			if existing.ISBN == book.ISBN {
				return &store.ConflictError{Constraint: store.ConstraintBookISBN}
			}
		}
		if _, ok := st.categories[book.CategoryID]; !ok {
			return errForeignKey
		}
		if err := checkCopies(book); err != nil {
			return err
		}
		now := time.Now()
		book.ID = st.id()
		book.Category = nil
		book.CreatedAt = now
		book.UpdatedAt = now
		st.books[book.ID] = book
		return nil
	})
	if err != nil {
		return types.Book{}, err
	}
	return book, nil
}

func (r *bookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	err := r.exec(func(st *state) error {
		if _, ok := st.books[book.ID]; !ok {
			return store.ErrNotFound
		}
		for _, existing := range st.books {
			if existing.ID != book.ID && existing.ISBN == book.ISBN {
				return &store.ConflictError{Constraint: store.ConstraintBookISBN}
			}
		}
		if _, ok := st.categories[book.CategoryID]; !ok {
			return errForeignKey
		}
		if err := checkCopies(book); err != nil {
			return err
		}
		book.Category = nil
		book.UpdatedAt = time.Now()
		st.books[book.ID] = book
		return nil
	})
	if err != nil {
		return types.Book{}, err
	}
	return book, nil
}

// Delete cascades to requests and loans like the schema does.
func (r *bookRepo) Delete(ctx context.Context, id int) error {
	return r.exec(func(st *state) error {
		if _, ok := st.books[id]; !ok {
			return store.ErrNotFound
		}
		delete(st.books, id)
		for requestID, request := range st.requests {
			if request.BookID == id {
				delete(st.requests, requestID)
			}
		}
		for loanID, loan := range st.loans {
			if loan.BookID == id {
				delete(st.loans, loanID)
			}
		}
		return nil
	})
}

func (r *bookRepo) DecrementAvailable(ctx context.Context, id int) error {
	return r.exec(func(st *state) error {
		if err := r.store.fail(OpDecrementAvailable); err != nil {
			return err
		}
		book, ok := st.books[id]
		if !ok || book.AvailableCopies <= 0 {
			return store.ErrNotFound
		}
		book.AvailableCopies--
		book.UpdatedAt = time.Now()
		st.books[id] = book
		return nil
	})
}

func (r *bookRepo) IncrementAvailable(ctx context.Context, id int) error {
	return r.exec(func(st *state) error {
		if err := r.store.fail(OpIncrementAvailable); err != nil {
			return err
		}
		book, ok := st.books[id]
		if !ok || book.AvailableCopies >= book.TotalCopies {
			return store.ErrNotFound
		}
		book.AvailableCopies++
		book.UpdatedAt = time.Now()
		st.books[id] = book
		return nil
	})
}

func (r *bookRepo) CountOutstanding(ctx context.Context, id int) (int, error) {
	var count int
	err := r.exec(func(st *state) error {
		for _, request := range st.requests {
			if request.BookID == id && request.Status == types.RequestPending {
				count++
			}
		}
		for _, loan := range st.loans {
			if loan.BookID == id && loan.Status == types.LoanActive {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *bookRepo) CountActiveLoans(ctx context.Context, id int) (int, error) {
	var count int
	err := r.exec(func(st *state) error {
		for _, loan := range st.loans {
			if loan.BookID == id && loan.Status == types.LoanActive {
				count++
			}
		}
		return nil
	})
	return count, err
}

type requestRepo struct {
	store *Store
	exec  execFunc
}

func withSummaries(st *state, request types.BookRequest) types.BookRequest {
	if user, ok := st.users[request.UserID]; ok {
		request.User = user.Summary()
	}
	if book, ok := st.books[request.BookID]; ok {
		request.Book = book.Summary()
	}
	request.Librarian = nil
	if request.LibrarianID != nil {
		if librarian, ok := st.users[*request.LibrarianID]; ok {
			request.Librarian = &types.UserSummary{ID: librarian.ID, Name: librarian.Name, Email: librarian.Email}
		}
	}
	return request
}

func (r *requestRepo) Get(ctx context.Context, id int) (types.BookRequest, error) {
	var request types.BookRequest
	err := r.exec(func(st *state) error {
		found, ok := st.requests[id]
		if !ok {
			return store.ErrNotFound
		}
		request = withSummaries(st, found)
		return nil
	})
	return request, err
}

func (r *requestRepo) GetForUpdate(ctx context.Context, id int) (types.BookRequest, error) {
	return r.Get(ctx, id)
}

func (r *requestRepo) List(ctx context.Context, filter types.BookRequestFilter) ([]types.BookRequest, error) {
	var requests []types.BookRequest
	err := r.exec(func(st *state) error {
		requests = make([]types.BookRequest, 0)
		for _, request := range st.requests {
			if filter.UserID != 0 && request.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && request.Status != filter.Status {
				continue
			}
			requests = append(requests, withSummaries(st, request))
		}
		slices.SortFunc(requests, func(a, b types.BookRequest) int {
			return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
		})
		return nil
	})
	return requests, err
}

func (r *requestRepo) HasPending(ctx context.Context, userID, bookID int) (bool, error) {
	var pending bool
	err := r.exec(func(st *state) error {
		for _, request := range st.requests {
			if request.UserID == userID && request.BookID == bookID && request.Status == types.RequestPending {
				pending = true
				return nil
			}
		}
		return nil
	})
	return pending, err
}

func (r *requestRepo) Create(ctx context.Context, request types.BookRequest) (types.BookRequest, error) {
	err := r.exec(func(st *state) error {
		if _, ok := st.users[request.UserID]; !ok {
			return errForeignKey
		}
		if _, ok := st.books[request.BookID]; !ok {
			return errForeignKey
		}
		if request.Status == types.RequestPending {
			for _, existing := range st.requests {
				if existing.UserID == request.UserID && existing.BookID == request.BookID && existing.Status == types.RequestPending {
					return &store.ConflictError{Constraint: store.ConstraintPendingRequest}
				}
			}
		}
		now := time.Now()
		if request.RequestDate.IsZero() {
			request.RequestDate = now
		}
		request.ID = st.id()
		request.CreatedAt = now
		request.UpdatedAt = now
		request.User, request.Book, request.Librarian = nil, nil, nil
		st.requests[request.ID] = request
		return nil
	})
	if err != nil {
		return types.BookRequest{}, err
	}
	return request, nil
}

func (r *requestRepo) UpdateStatus(ctx context.Context, request types.BookRequest) error {
	return r.exec(func(st *state) error {
		if err := r.store.fail(OpUpdateRequest); err != nil {
			return err
		}
		current, ok := st.requests[request.ID]
		if !ok || current.Status != types.RequestPending {
			return store.ErrNotFound
		}
		current.Status = request.Status
		current.LibrarianID = request.LibrarianID
		current.ProcessedAt = request.ProcessedAt
		current.Notes = request.Notes
		current.UpdatedAt = time.Now()
		st.requests[request.ID] = current
		return nil
	})
}

type loanRepo struct {
	store *Store
	exec  execFunc
}

func (r *loanRepo) Create(ctx context.Context, loan types.Transaction) (types.Transaction, error) {
	err := r.exec(func(st *state) error {
		if err := r.store.fail(OpCreateLoan); err != nil {
			return err
		}
		if _, ok := st.books[loan.BookID]; !ok {
			return errForeignKey
		}
		loan.ID = st.id()
		loan.CreatedAt = time.Now()
		st.loans[loan.ID] = loan
		return nil
	})
	if err != nil {
		return types.Transaction{}, err
	}
	return loan, nil
}

func (r *loanRepo) Get(ctx context.Context, id int) (types.Transaction, error) {
	var loan types.Transaction
	err := r.exec(func(st *state) error {
		found, ok := st.loans[id]
		if !ok {
			return store.ErrNotFound
		}
		loan = found
		return nil
	})
	return loan, err
}

func (r *loanRepo) GetForUpdate(ctx context.Context, id int) (types.Transaction, error) {
	return r.Get(ctx, id)
}

func (r *loanRepo) List(ctx context.Context, filter types.TransactionFilter) ([]types.Transaction, error) {
	var loans []types.Transaction
	err := r.exec(func(st *state) error {
		loans = make([]types.Transaction, 0)
		for _, loan := range st.loans {
			if filter.UserID != 0 && loan.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && loan.Status != filter.Status {
				continue
			}
			loans = append(loans, loan)
		}
		slices.SortFunc(loans, func(a, b types.Transaction) int {
			return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
		})
		return nil
	})
	return loans, err
}

func (r *loanRepo) MarkReturned(ctx context.Context, id int, returnedAt time.Time) error {
	return r.exec(func(st *state) error {
		loan, ok := st.loans[id]
		if !ok || loan.Status != types.LoanActive {
			return store.ErrNotFound
		}
		loan.Status = types.LoanReturned
		loan.ReturnedAt = &returnedAt
		st.loans[id] = loan
		return nil
	})
}
