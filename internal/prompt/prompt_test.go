package prompt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/printbot/internal/catalog"
	"github.com/m3rciful/printbot/internal/session"
)

type stringer string

func (s stringer) String() string { return string(s) }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Paper{
		{Name: "глянцевая", Sizes: []catalog.Size{{Label: "10x15", Price: 22}, {Label: "15x21", Price: 45}}},
		{Name: "матовая", Sizes: []catalog.Size{{Label: "10x15", Price: 25}}},
	})
	require.NoError(t, err)
	return c
}

func TestMenus(t *testing.T) {
	cat := testCatalog(t)
	assert.Equal(t, "Выберите тип бумаги: \n1 - глянцевая\n2 - матовая\n", Paper(cat))
	assert.Equal(t, "Выберите размер фотографий: \n1 - 10x15 22руб/шт\n2 - 15x21 45руб/шт\n", Size(cat, "глянцевая"))
}

func TestPhase(t *testing.T) {
	cat := testCatalog(t)
	s := session.New("1", "", time.Now())
	assert.Equal(t, Greeting(), Phase(cat, s))

	s.AddFile("f", time.Now())
	assert.Equal(t, Files(true), Phase(cat, s))

	s.State = session.PaperRequested
	assert.Equal(t, Paper(cat), Phase(cat, s))

	s.State, s.Paper = session.SizeRequested, "матовая"
	assert.Equal(t, Size(cat, "матовая"), Phase(cat, s))

	s.Paper = "холст"
	assert.Equal(t, Paper(cat), Phase(cat, s))
	s.Paper = ""
	assert.Equal(t, Paper(cat), Phase(cat, s))

	s.State = session.SizeSelected
	assert.Equal(t, Ready(), Phase(cat, s))
}

func TestAccepted(t *testing.T) {
	got := Accepted("A-17", Shop{Address: "ул. Ленина, 1", Phone: "+7 900 000-00-00"})
	assert.Contains(t, got, "A-17")
	assert.Contains(t, got, "ул. Ленина, 1")
	assert.Contains(t, got, "+7 900 000-00-00")

	admin := AdminFailure(stringer("Телефон: 7914"), errors.New("status 500"))
	assert.Contains(t, admin, "status 500")
	assert.Contains(t, admin, "Телефон: 7914")
}
