package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geniass/stockwatch/pkg/scraper"
)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time         { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type storeFactory func(t *testing.T, now func() time.Time) Store

const owner = "chat-42"

func codeN(i int) string {
	return fmt.Sprintf("B0TEST%04d", i)
}

func assertPrice(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	if want == "" {
		assert.False(t, got.Valid, "expected no price, got %s", got.Decimal)
		return
	}
	if assert.True(t, got.Valid, "expected price %s", want) {
		assert.True(t, decimal.RequireFromString(want).Equal(got.Decimal), "want %s got %s", want, got.Decimal)
	}
}

// testStoreContract runs the behaviour every Store implementation must share.
func testStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("upsert creates then updates title and url only", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Kettle", "https://www.amazon.in/dp/"+codeN(1))
		require.NoError(t, err)
		assert.Equal(t, scraper.Unknown, p.Availability)
		assert.True(t, p.NextCheck.Equal(clock.Now()))
		assert.True(t, p.LastChecked.IsZero())

		_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price("1000")})
		require.NoError(t, err)

		again, err := s.UpsertProduct(ctx, owner, codeN(1), "Steel Kettle", "https://www.amazon.in/dp/"+codeN(1)+"?th=1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, again.ID)
		assert.Equal(t, "Steel Kettle", again.Title)
		assert.Equal(t, "https://www.amazon.in/dp/"+codeN(1)+"?th=1", again.URL)
		assertPrice(t, "1000", again.CurrentPrice)
		assert.Equal(t, scraper.InStock, again.Availability)

		other, err := s.UpsertProduct(ctx, "chat-7", codeN(1), "Kettle", "u")
		require.NoError(t, err)
		assert.NotEqual(t, p.ID, other.ID, "same code for another owner is another product")
	})

	t.Run("due products exclude inactive and respect limit and order", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		var ids []string
		for i := 0; i < 5; i++ {
			p, err := s.UpsertProduct(ctx, owner, codeN(i), "Item", "u")
			require.NoError(t, err)
			ids = append(ids, p.ID.String())
			clock.Advance(time.Second)
		}
		require.NoError(t, s.SetInactive(ctx, owner, codeN(1)))

		due, err := s.DueProducts(ctx, 3)
		require.NoError(t, err)
		require.Len(t, due, 3)
		assert.Equal(t, []string{ids[0], ids[2], ids[3]}, productIDs(due))

		due, err = s.DueProducts(ctx, 50)
		require.NoError(t, err)
		assert.Len(t, due, 4)
		for _, p := range due {
			assert.NotEqual(t, scraper.Inactive, p.Availability)
		}
	})

	t.Run("observation cools the product down", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		p, err = observe(ctx, s, p.ID, Observation{Availability: scraper.OutOfStock})
		require.NoError(t, err)
		assert.True(t, p.LastChecked.Equal(clock.Now()))
		assert.True(t, p.NextCheck.Equal(clock.Now().Add(5*time.Minute)))

		due, err := s.DueProducts(ctx, 50)
		require.NoError(t, err)
		assert.Empty(t, due)

		clock.Advance(5 * time.Minute)
		due, err = s.DueProducts(ctx, 50)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("price drop observation end to end", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price("1000.00")})
		require.NoError(t, err)

		history, err := s.PriceHistory(ctx, p.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, history, "first price has nothing to replace")

		clock.Advance(10 * time.Minute)
		drop, err := s.PriceDrop(ctx, p.ID, decimal.RequireFromString("900.00"))
		require.NoError(t, err)
		assert.True(t, drop.Dropped)
		assert.True(t, decimal.NewFromInt(10).Equal(drop.Percent))
		assertPrice(t, "1000", drop.OldPrice)

		rec, err := s.RecordObservation(ctx, p.ID, Observation{Availability: scraper.InStock, Price: price("900.00")})
		require.NoError(t, err)
		assert.True(t, rec.Drop.Dropped)
		assert.True(t, drop.Percent.Equal(rec.Drop.Percent), "want %s got %s", drop.Percent, rec.Drop.Percent)
		assertPrice(t, "1000", rec.Drop.OldPrice)
		assert.Equal(t, scraper.InStock, rec.Before.Availability)
		assertPrice(t, "1000", rec.Before.CurrentPrice)
		p = rec.Product
		assertPrice(t, "1000", p.PreviousPrice)
		assertPrice(t, "900", p.CurrentPrice)
		assert.Equal(t, 2, p.CheckCount)
		assert.Equal(t, 0, p.FailCount)

		history, err = s.PriceHistory(ctx, p.ID, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.True(t, decimal.RequireFromString("1000").Equal(history[0].Price))
		assert.Equal(t, scraper.InStock, history[0].Availability)
		assert.True(t, history[0].CheckedAt.Equal(clock.Now()))
	})

	t.Run("history sample carries the availability observed with the new price", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.OutOfStock, Price: price("1000")})
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		rec, err := s.RecordObservation(ctx, p.ID, Observation{Availability: scraper.InStock, Price: price("900")})
		require.NoError(t, err)
		assert.Equal(t, scraper.OutOfStock, rec.Before.Availability)
		assert.Equal(t, scraper.InStock, rec.Product.Availability)
		assert.True(t, rec.Drop.Dropped)
		assert.True(t, decimal.NewFromInt(10).Equal(rec.Drop.Percent))

		history, err := s.PriceHistory(ctx, p.ID, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.True(t, decimal.RequireFromString("1000").Equal(history[0].Price))
		assert.Equal(t, scraper.InStock, history[0].Availability)
	})

	t.Run("consecutive observations see each other's state", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.OutOfStock, Price: price("1000")})
		require.NoError(t, err)

		first, err := s.RecordObservation(ctx, p.ID, Observation{Availability: scraper.InStock, Price: price("900")})
		require.NoError(t, err)
		second, err := s.RecordObservation(ctx, p.ID, Observation{Availability: scraper.InStock, Price: price("900")})
		require.NoError(t, err)

		assert.Equal(t, scraper.OutOfStock, first.Before.Availability)
		assert.True(t, first.Drop.Dropped)
		assert.Equal(t, scraper.InStock, second.Before.Availability)
		assert.False(t, second.Drop.Dropped, "the second observation compares against the already stored 900")
	})

	t.Run("absent price reports no drop", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price("1000")})
		require.NoError(t, err)

		rec, err := s.RecordObservation(ctx, p.ID, Observation{Availability: scraper.OutOfStock})
		require.NoError(t, err)
		assert.False(t, rec.Drop.Dropped)
	})

	t.Run("unchanged price appends no history", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			p, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price("499.00")})
			require.NoError(t, err)
		}
		assert.Equal(t, 3, p.CheckCount)
		assert.False(t, p.PreviousPrice.Valid)

		history, err := s.PriceHistory(ctx, p.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("absent price keeps stored price and counts unusable results", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price("1000")})
		require.NoError(t, err)

		p, err = observe(ctx, s, p.ID, Observation{Availability: scraper.Unknown})
		require.NoError(t, err)
		assertPrice(t, "1000", p.CurrentPrice)
		assert.Equal(t, scraper.Unknown, p.Availability)
		assert.Equal(t, 1, p.FailCount)

		p, err = observe(ctx, s, p.ID, Observation{Availability: scraper.OutOfStock})
		require.NoError(t, err)
		assertPrice(t, "1000", p.CurrentPrice)
		assert.Equal(t, scraper.OutOfStock, p.Availability)
		assert.Equal(t, 0, p.FailCount)
	})

	t.Run("observation title replaces stored title", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Product "+codeN(1), "u")
		require.NoError(t, err)
		p, err = observe(ctx, s, p.ID, Observation{Title: "Steel Kettle", Availability: scraper.InStock})
		require.NoError(t, err)
		assert.Equal(t, "Steel Kettle", p.Title)

		p, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock})
		require.NoError(t, err)
		assert.Equal(t, "Steel Kettle", p.Title)
	})

	t.Run("failure leaves observation state untouched", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		before, err := observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price("1000")})
		require.NoError(t, err)

		clock.Advance(time.Hour)
		after, err := s.RecordFailure(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, after.FailCount)
		assert.Equal(t, before.CheckCount, after.CheckCount)
		assert.Equal(t, scraper.InStock, after.Availability)
		assertPrice(t, "1000", after.CurrentPrice)
		assert.True(t, after.LastChecked.Equal(clock.Now()))
		assert.True(t, after.NextCheck.Equal(clock.Now().Add(5*time.Minute)))

		after, err = s.RecordFailure(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, after.FailCount)
	})

	t.Run("pause and resume", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock})
		require.NoError(t, err)
		require.NoError(t, s.SetInactive(ctx, owner, codeN(1)))

		clock.Advance(time.Hour)
		p, err = observe(ctx, s, p.ID, Observation{Availability: scraper.OutOfStock, Price: price("20")})
		require.NoError(t, err)
		assert.Equal(t, scraper.Inactive, p.Availability, "a racing observation does not resume a paused product")

		require.NoError(t, s.Reactivate(ctx, owner, codeN(1)))
		p, err = s.FindProduct(ctx, owner, codeN(1))
		require.NoError(t, err)
		assert.Equal(t, scraper.Unknown, p.Availability)
		assert.True(t, p.NextCheck.Equal(clock.Now()))

		assert.ErrorIs(t, s.SetInactive(ctx, owner, codeN(9)), ErrNotFound)
		assert.ErrorIs(t, s.Reactivate(ctx, owner, codeN(9)), ErrNotFound)
	})

	t.Run("remove cascades history", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		for _, v := range []string{"100", "90", "80"} {
			_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price(v)})
			require.NoError(t, err)
		}

		require.NoError(t, s.RemoveProduct(ctx, owner, codeN(1)))
		_, err = s.GetProduct(ctx, p.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.PriceHistory(ctx, p.ID, 10)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.ErrorIs(t, s.RemoveProduct(ctx, owner, codeN(1)), ErrNotFound)
	})

	t.Run("history is newest first and limited", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		p, err := s.UpsertProduct(ctx, owner, codeN(1), "Item", "u")
		require.NoError(t, err)
		for _, v := range []string{"100", "90", "80", "70"} {
			clock.Advance(time.Minute)
			_, err = observe(ctx, s, p.ID, Observation{Availability: scraper.InStock, Price: price(v)})
			require.NoError(t, err)
		}

		history, err := s.PriceHistory(ctx, p.ID, 2)
		require.NoError(t, err)
		var got []string
		for _, h := range history {
			got = append(got, h.Price.String())
		}
		if diff := cmp.Diff([]string{"80", "90"}, got); diff != "" {
			t.Errorf("history mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("list is per owner newest first", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock.Now)

		for i := 0; i < 3; i++ {
			_, err := s.UpsertProduct(ctx, owner, codeN(i), "Item", "u")
			require.NoError(t, err)
			clock.Advance(time.Second)
		}
		_, err := s.UpsertProduct(ctx, "chat-7", codeN(5), "Item", "u")
		require.NoError(t, err)

		list, err := s.ListProducts(ctx, owner)
		require.NoError(t, err)
		var codes []string
		for _, p := range list {
			codes = append(codes, p.Code)
		}
		assert.Equal(t, []string{codeN(2), codeN(1), codeN(0)}, codes)
	})

	t.Run("unknown ids", func(t *testing.T) {
		s := newStore(t, newTestClock().Now)
		p := Product{}

		_, err := observe(ctx, s, p.ID, Observation{Availability: scraper.InStock})
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.RecordFailure(ctx, p.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.PriceDrop(ctx, p.ID, decimal.NewFromInt(10))
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.FindProduct(ctx, owner, codeN(1))
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func observe(ctx context.Context, s Store, id uuid.UUID, obs Observation) (Product, error) {
	rec, err := s.RecordObservation(ctx, id, obs)
	return rec.Product, err
}

func productIDs(ps []Product) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID.String()
	}
	return ids
}
