package account_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/account"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store/storetest"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker/trackertest"
)

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		mem      *storetest.Memory
		fake     *trackertest.Fake
		resolver *account.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = storetest.NewMemory()
		fake = trackertest.NewFake()
		resolver = account.NewResolver(mem.Accounts(), fake)
	})

	It("returns a stored account without asking the directory", func() {
		mem.PutAccount(model.Account{ChatUserID: 1, ChatID: 1, TrackerUserID: 50})

		acc, err := resolver.Resolve(ctx, account.Identity{UserID: 1, ChatID: 1, Username: "nobody"})
		Expect(err).NotTo(HaveOccurred())
		Expect(acc.TrackerUserID).To(Equal(int64(50)))
	})

	It("links a new chat user by username", func() {
		fake.PutUser(model.Person{ID: 77, Username: "Alice"})

		acc, err := resolver.Resolve(ctx, account.Identity{UserID: 2, ChatID: 2, Username: "alice"})
		Expect(err).NotTo(HaveOccurred())
		Expect(acc.TrackerUserID).To(Equal(int64(77)))

		stored, err := mem.Accounts().GetByTrackerUser(ctx, 77)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ChatID).To(Equal(int64(2)))
	})

	It("updates the home chat when it moved", func() {
		mem.PutAccount(model.Account{ChatUserID: 1, ChatID: 1, TrackerUserID: 50})

		_, err := resolver.Resolve(ctx, account.Identity{UserID: 1, ChatID: 9})
		Expect(err).NotTo(HaveOccurred())

		stored, err := mem.Accounts().GetByChatUser(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ChatID).To(Equal(int64(9)))
	})

	It("reports an unavailable account for unknown usernames", func() {
		_, err := resolver.Resolve(ctx, account.Identity{UserID: 3, ChatID: 3, Username: "ghost"})
		Expect(err).To(MatchError(account.ErrAccountUnavailable))
	})

	It("reports an unavailable account without a username", func() {
		_, err := resolver.Resolve(ctx, account.Identity{UserID: 3, ChatID: 3})
		Expect(err).To(MatchError(account.ErrAccountUnavailable))
	})

	It("surfaces store failures as errors, not as missing accounts", func() {
		mem.ErrAccounts = errors.New("connection refused")
		_, err := resolver.Resolve(ctx, account.Identity{UserID: 3, ChatID: 3, Username: "alice"})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, account.ErrAccountUnavailable)).To(BeFalse())
	})
})
