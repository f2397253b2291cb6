package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/libranet/apiserver/internal/mq"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/internal/store/memstore"
	"github.com/libranet/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeedFile(t *testing.T) {
	f, err := os.Open("../seed/books.json")
	require.NoError(t, err)
	defer f.Close()

	categories, books, err := parseSeed(f)
	require.NoError(t, err)
	assert.Contains(t, categories, "Dystopian")
	require.Len(t, books, 4)
	assert.Equal(t, "9780451524935", books[1].ISBN)
	require.NotNil(t, books[1].PublicationDate)
	assert.Equal(t, 1949, books[1].PublicationDate.Year())
	require.NotNil(t, books[1].AvailableCopies)
	assert.Equal(t, 7, *books[1].AvailableCopies)
	assert.Nil(t, books[3].ImageURL)
}

func TestParseSeedRejectsBadDate(t *testing.T) {
	_, _, err := parseSeed(strings.NewReader(`{"books":[{"isbn":"1","publication_date":"June 1949"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publication_date")
}

func TestSeedImportIsIdempotent(t *testing.T) {
	f, err := os.Open("../seed/books.json")
	require.NoError(t, err)
	defer f.Close()
	categories, books, err := parseSeed(f)
	require.NoError(t, err)

	st := memstore.New()
	svc := services.NewBookService(st.Repositories(), st, nil, nil)

	first, err := svc.Import(context.Background(), categories, books)
	require.NoError(t, err)
	assert.Equal(t, 6, first.CategoriesCreated)
	assert.Equal(t, 4, first.BooksCreated)

	second, err := svc.Import(context.Background(), categories, books)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CategoriesCreated)
	assert.Equal(t, 0, second.BooksCreated)
	assert.Equal(t, 4, second.BooksSkipped)
}

func TestPrintCatalog(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printCatalog(&out, []types.CategorySummary{
		{Category: types.Category{ID: 1, Name: "Fantasy"}, BookCount: 2},
		{Category: types.Category{ID: 2, Name: "Romance"}, BookCount: 1},
	}))
	text := out.String()
	assert.Contains(t, text, "Fantasy")
	assert.Contains(t, text, "TOTAL")
	assert.Contains(t, text, "3")
}

type recordingMailer struct {
	mu       sync.Mutex
	subjects []string
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func TestWorkerEventHandlerSendsDecisionMail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st := memstore.New()
	repos := st.Repositories()
	user, err := repos.Users.Create(ctx, types.User{Name: "Pat", Email: "p@x.com", Role: types.RolePatron, LibraryCardNumber: "LIB-000001"})
	require.NoError(t, err)
	books := services.NewBookService(repos, st, nil, nil)
	book, err := books.Create(ctx, services.BookInput{Title: "Dune", Author: "Herbert", ISBN: "1", Category: "SF", TotalCopies: 1})
	require.NoError(t, err)

	mail := &recordingMailer{}
	handler := eventHandler(services.NewNotificationService(repos, mail, nil))

	queue := mq.NewMQ(mq.NewMemoryBackend())
	defer queue.Close()
	publisher := mq.NewEventPublisher(queue, "book-requests")
	due := time.Now().Add(14 * 24 * time.Hour)
	require.NoError(t, publisher.PublishBookRequestEvent(ctx, types.BookRequestEvent{
		Type: types.EventRequestProcessed, RequestID: 1, UserID: user.ID, BookID: book.ID,
		Status: types.RequestApproved, DueDate: &due,
	}))
	_, err = queue.Publish(ctx, "book-requests", []byte("not json"), nil)
	require.NoError(t, err)

	handled := 0
	err = queue.Subscribe(ctx, "book-requests", func(ctx context.Context, msg mq.Message) error {
		err := handler(ctx, msg)
		handled++
		if handled == 2 {
			cancel()
		}
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)

	mail.mu.Lock()
	defer mail.mu.Unlock()
	assert.Equal(t, []string{"Your book request was approved"}, mail.subjects)
}

func TestReadAdminPasswordPrecedence(t *testing.T) {
	t.Cleanup(func() { adminPassword = "" })

	t.Setenv("ADMIN_PASSWORD", "from-env")
	adminPassword = ""
	password, err := readAdminPassword(adminCreateCmd)
	require.NoError(t, err)
	assert.Equal(t, "from-env", password)

	adminPassword = "from-flag"
	password, err = readAdminPassword(adminCreateCmd)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", password)
}
