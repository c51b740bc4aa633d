package main

import (
	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/es/assert"
)

const (
	AccountOpened  = "AccountOpened"
	MoneyDeposited = "MoneyDeposited"
)

type Account struct {
	es.AggregateRoot

	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Balance  int64  `json:"balance"`
	Deposits int    `json:"deposits"`
}

func OpenAccount(id, owner string) (*Account, error) {
	a := &Account{}
	err := a.Checked(
		assert.All(assert.NotEmpty(id, "id"), assert.NotEmpty(owner, "owner")),
		func() error {
			return es.RecordThat(a, es.Occur(AccountOpened, id, map[string]any{"owner": owner}))
		},
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Account) AggregateID() string { return a.ID }

func (a *Account) AggregateType() es.AggregateType {
	return es.NamedAggregateType[*Account]("account")
}

func (a *Account) Deposit(amount int64) error {
	return a.Checked(
		assert.True(amount > 0, "deposit is positive"),
		func() error {
			return es.RecordThat(a, es.Occur(MoneyDeposited, a.ID, map[string]any{"amount": amount}))
		},
	)
}

func (a *Account) Apply(e es.AggregateChanged) error {
	return es.EventHandlers{
		AccountOpened: func(e es.AggregateChanged) error {
			a.ID = e.AggregateID()
			a.Owner = e.PayloadString("owner")
			return nil
		},
		MoneyDeposited: func(e es.AggregateChanged) error {
			a.Balance += e.PayloadInt("amount")
			a.Deposits++
			return nil
		},
	}.Dispatch(a, e)
}

var (
	_ es.Aggregate             = (*Account)(nil)
	_ es.AggregateTypeProvider = (*Account)(nil)
)
