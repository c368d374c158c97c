package album_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/album"
)

type msg struct {
	group   string
	session string
	n       int
}

type collector struct {
	mu      sync.Mutex
	batches [][]msg
}

func (c *collector) handle(ctx context.Context, items []msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]msg(nil), items...))
}

func (c *collector) get() [][]msg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]msg(nil), c.batches...)
}

var _ = Describe("Aggregator", func() {
	var (
		ctx context.Context
		col *collector
		agg *album.Aggregator[msg]
	)

	key := func(m msg) (string, string) { return m.group, m.session }

	BeforeEach(func() {
		ctx = context.Background()
		col = &collector{}
		agg = album.New(key, col.handle, 40*time.Millisecond)
	})

	It("delivers three album messages as exactly one batch of three", func() {
		for i := 1; i <= 3; i++ {
			agg.Add(ctx, msg{group: "g1", session: "s", n: i})
		}
		agg.Wait()

		batches := col.get()
		Expect(batches).To(HaveLen(1))
		Expect(batches[0]).To(HaveLen(3))
		Expect(batches[0][0].n).To(Equal(1))
		Expect(batches[0][2].n).To(Equal(3))
	})

	It("extends the window while siblings keep arriving", func() {
		for i := 1; i <= 4; i++ {
			agg.Add(ctx, msg{group: "g1", session: "s", n: i})
			time.Sleep(15 * time.Millisecond)
		}
		agg.Wait()

		Expect(col.get()).To(HaveLen(1))
		Expect(col.get()[0]).To(HaveLen(4))
	})

	It("passes unbatched messages straight through", func() {
		agg.Add(ctx, msg{session: "s", n: 1})
		Expect(col.get()).To(Equal([][]msg{{{session: "s", n: 1}}}))
	})

	It("flushes a pending album before a later plain message of the same session", func() {
		agg.Add(ctx, msg{group: "g1", session: "s", n: 1})
		agg.Add(ctx, msg{group: "g1", session: "s", n: 2})
		agg.Add(ctx, msg{session: "s", n: 3})
		agg.Wait()

		batches := col.get()
		Expect(batches).To(HaveLen(2))
		Expect(batches[0]).To(HaveLen(2))
		Expect(batches[1][0].n).To(Equal(3))
	})

	It("keeps other sessions' albums pending", func() {
		agg.Add(ctx, msg{group: "g1", session: "a", n: 1})
		agg.Add(ctx, msg{session: "b", n: 2})

		Expect(col.get()).To(HaveLen(1))
		Expect(col.get()[0][0].n).To(Equal(2))

		agg.Wait()
		Expect(col.get()).To(HaveLen(2))
	})

	It("keeps separate albums separate", func() {
		agg.Add(ctx, msg{group: "g1", session: "s", n: 1})
		agg.Add(ctx, msg{group: "g2", session: "s", n: 2})
		agg.Wait()

		Expect(col.get()).To(HaveLen(2))
	})

	It("flushes pending albums when the context is cancelled", func() {
		slow := album.New(key, col.handle, time.Hour)
		cctx, cancel := context.WithCancel(ctx)
		slow.Add(cctx, msg{group: "g1", session: "s", n: 1})
		cancel()
		slow.Wait()

		Expect(col.get()).To(HaveLen(1))
	})
})
