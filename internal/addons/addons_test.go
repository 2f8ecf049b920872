package addons

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(id string, v Variant) *AddOn {
	return &AddOn{ID: id, AgencyID: "ag_1", Variant: v, Status: StatusActive, CreatedAt: time.Now()}
}

func TestParseVariant(t *testing.T) {
	for _, v := range Variants() {
		got, err := ParseVariant(string(v.Kind()), v.Option())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	tests := []struct{ kind, option string }{
		{"extra_dashboards", "100"},
		{"extra_keyword_lookups", "5_slots"},
		{"extra_keywords_tracked", "300"},
		{"extra_widgets", "100"},
		{"", ""},
	}
	for _, tt := range tests {
		_, err := ParseVariant(tt.kind, tt.option)
		assert.ErrorIs(t, err, ErrUnknownOption, "%s/%s", tt.kind, tt.option)
	}
}

func TestVariantModifiers(t *testing.T) {
	assert.Equal(t, Modifiers{ExtraCredits: 300}, Lookups300.Modifiers())
	assert.Equal(t, Modifiers{ExtraDashboards: 10}, Dashboards10.Modifiers())
	assert.Equal(t, Modifiers{ExtraKeywords: 250}, Keywords250.Modifiers())
	assert.Equal(t, Modifiers{}, Variant{}.Modifiers())
}

func TestFold_OrderIndependent(t *testing.T) {
	two := []*AddOn{row("a", Dashboards5), row("b", Dashboards5)}
	assert.Equal(t, 10, Fold(two).ExtraDashboards)
	assert.Equal(t, Dashboards10.Modifiers(), Fold(two))

	mixed := []*AddOn{row("a", Lookups100), row("b", Dashboards25), row("c", Keywords500), row("d", Lookups500)}
	reversed := []*AddOn{mixed[3], mixed[2], mixed[1], mixed[0]}
	assert.Equal(t, Fold(mixed), Fold(reversed))
	assert.Equal(t, Modifiers{ExtraDashboards: 25, ExtraCredits: 600, ExtraKeywords: 500}, Fold(mixed))

	// (a+b)+c == a+(b+c)
	a, b, c := Lookups100.Modifiers(), Dashboards5.Modifiers(), Keywords100.Modifiers()
	assert.Equal(t, a.Add(b).Add(c), a.Add(b.Add(c)))
}

func TestFold_SkipsCanceled(t *testing.T) {
	canceled := row("b", Dashboards25)
	canceled.Status = StatusCanceled
	assert.Equal(t, 5, Fold([]*AddOn{row("a", Dashboards5), canceled}).ExtraDashboards)
	assert.Equal(t, Modifiers{}, Fold(nil))
}

func TestReader_Modifiers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, row("a", Lookups100)))
	require.NoError(t, store.Create(ctx, row("b", Lookups100)))
	other := row("c", Dashboards25)
	other.AgencyID = "ag_2"
	require.NoError(t, store.Create(ctx, other))

	mods, err := NewReader(store).Modifiers(ctx, "ag_1")
	require.NoError(t, err)
	assert.Equal(t, Modifiers{ExtraCredits: 200}, mods)

	mods, err = NewReader(store).Modifiers(ctx, "ag_none")
	require.NoError(t, err)
	assert.Equal(t, Modifiers{}, mods)
}

type failingStore struct{ MemoryStore }

func (f *failingStore) ListByAgency(context.Context, string) ([]*AddOn, error) {
	return nil, errors.New("connection reset")
}

func TestReader_PropagatesFailure(t *testing.T) {
	_, err := NewReader(&failingStore{}).Modifiers(context.Background(), "ag_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestMemoryStore_CancelAndReplace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, row("a", Dashboards5)))
	require.NoError(t, store.Create(ctx, row("b", Keywords100)))

	require.NoError(t, store.Cancel(ctx, "a"))
	assert.ErrorIs(t, store.Cancel(ctx, "missing"), ErrAddOnNotFound)

	rows, _ := store.ListByAgency(ctx, "ag_1")
	assert.Equal(t, Modifiers{ExtraKeywords: 100}, Fold(rows))

	require.NoError(t, store.ReplaceActive(ctx, "ag_1", []*AddOn{row("c", Lookups500)}))
	rows, _ = store.ListByAgency(ctx, "ag_1")
	assert.Len(t, rows, 3)
	assert.Equal(t, Modifiers{ExtraCredits: 500}, Fold(rows))
}
