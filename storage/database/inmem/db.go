package inmemdb

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

type (
	txKey struct{}

	tables struct {
		users        map[string]user.User
		plans        map[string]student.Plan
		students     map[string]student.Student
		classes      map[string]schedule.Class
		templates    map[string]schedule.Template
		payments     map[string]billing.Payment
		commissions  map[string]billing.Commission
		transactions []finance.Transaction // append-only
		expenses     []finance.Expense
	}

	// DB is a process-local store. A transaction holds the write lock until it ends
	// and is rolled back by restoring the tables as they were when it began.
	DB struct {
		mu sync.RWMutex
		t  *tables
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{t: &tables{
		users:       make(map[string]user.User),
		plans:       make(map[string]student.Plan),
		students:    make(map[string]student.Student),
		classes:     make(map[string]schedule.Class),
		templates:   make(map[string]schedule.Template),
		payments:    make(map[string]billing.Payment),
		commissions: make(map[string]billing.Commission),
	}}
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

func (db *DB) read(ctx context.Context, fn func(t *tables)) {
	if !db.inTx(ctx) {
		db.mu.RLock()
		defer db.mu.RUnlock()
	}
	fn(db.t)
}

func (db *DB) write(ctx context.Context, fn func(t *tables) error) error {
	if !db.inTx(ctx) {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	return fn(db.t)
}

func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.t.clone()
	defer func() {
		if p := recover(); p != nil {
			db.t = snapshot
			panic(p)
		}
		if err != nil {
			db.t = snapshot
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, db))
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = Open().t
}

func (t *tables) clone() *tables {
	c := &tables{
		users:        make(map[string]user.User, len(t.users)),
		plans:        make(map[string]student.Plan, len(t.plans)),
		students:     make(map[string]student.Student, len(t.students)),
		classes:      make(map[string]schedule.Class, len(t.classes)),
		templates:    make(map[string]schedule.Template, len(t.templates)),
		payments:     make(map[string]billing.Payment, len(t.payments)),
		commissions:  make(map[string]billing.Commission, len(t.commissions)),
		transactions: append([]finance.Transaction(nil), t.transactions...),
		expenses:     append([]finance.Expense(nil), t.expenses...),
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.plans {
		c.plans[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.templates {
		c.templates[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.commissions {
		c.commissions[k] = v
	}
	return c
}

func newID() string {
	return uuid.New().String()
}

func cloneIDs(ids []string) []string {
	return append([]string{}, ids...)
}
