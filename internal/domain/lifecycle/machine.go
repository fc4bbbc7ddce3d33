// Package lifecycle содержит обобщённую машину состояний, общую для
// компаний, пакетов документов, стажировок и мест (plazas).
//
// Каждый вид сущности описывает собственную таблицу переходов через
// Machine[S]. Любой переход, которого нет в таблице, отклоняется.
package lifecycle

import (
	"fmt"
	"sort"

	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// Kind - вид сущности, у которой есть жизненный цикл.
type Kind string

const (
	KindCompany    Kind = "company"
	KindDocument   Kind = "document"
	KindInternship Kind = "internship"
	KindSlot       Kind = "slot"
)

// IsValid проверяет, что вид сущности известен.
func (k Kind) IsValid() bool {
	switch k {
	case KindCompany, KindDocument, KindInternship, KindSlot:
		return true
	}
	return false
}

// String возвращает строковое представление.
func (k Kind) String() string {
	return string(k)
}

// State - сохранённое состояние сущности без привязки к виду.
// Именно в таком виде состояние читается и пишется репозиторием.
type State string

// Edge - одно ребро таблицы переходов.
type Edge[S ~string] struct {
	From S
	To   S
}

// Machine - таблица переходов для одного вида сущности.
// После создания таблица не изменяется и безопасна для конкурентного чтения.
type Machine[S ~string] struct {
	kind    Kind
	initial S
	states  map[S]struct{}
	edges   map[S]map[S]struct{}
}

// NewMachine создаёт таблицу переходов. Все состояния, упомянутые в рёбрах,
// а также начальное состояние, считаются допустимыми.
func NewMachine[S ~string](kind Kind, initial S, edges ...Edge[S]) *Machine[S] {
	m := &Machine[S]{
		kind:    kind,
		initial: initial,
		states:  map[S]struct{}{initial: {}},
		edges:   make(map[S]map[S]struct{}),
	}
	for _, e := range edges {
		m.states[e.From] = struct{}{}
		m.states[e.To] = struct{}{}
		if m.edges[e.From] == nil {
			m.edges[e.From] = make(map[S]struct{})
		}
		m.edges[e.From][e.To] = struct{}{}
	}
	return m
}

// Kind возвращает вид сущности таблицы.
func (m *Machine[S]) Kind() Kind {
	return m.kind
}

// Initial возвращает состояние, в котором создаётся сущность.
func (m *Machine[S]) Initial() S {
	return m.initial
}

// Valid проверяет, что состояние принадлежит таблице.
func (m *Machine[S]) Valid(s S) bool {
	_, ok := m.states[s]
	return ok
}

// Allows проверяет, что переход from -> to есть в таблице.
func (m *Machine[S]) Allows(from, to S) bool {
	_, ok := m.edges[from][to]
	return ok
}

// Terminal - состояние без исходящих переходов.
func (m *Machine[S]) Terminal(s S) bool {
	return m.Valid(s) && len(m.edges[s]) == 0
}

// Next возвращает отсортированный список состояний, достижимых из s за один шаг.
func (m *Machine[S]) Next(s S) []S {
	out := make([]S, 0, len(m.edges[s]))
	for to := range m.edges[s] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Permits - то же, что Allows, для нетипизированных состояний.
func (m *Machine[S]) Permits(from, to State) bool {
	return m.Allows(S(from), S(to))
}

// Recognizes - то же, что Valid, для нетипизированных состояний.
func (m *Machine[S]) Recognizes(s State) bool {
	return m.Valid(S(s))
}

// Targets - то же, что Next, для нетипизированных состояний.
func (m *Machine[S]) Targets(from State) []State {
	next := m.Next(S(from))
	out := make([]State, len(next))
	for i, s := range next {
		out[i] = State(s)
	}
	return out
}

// Rules - нетипизированное представление таблицы переходов. Используется там,
// где вид сущности известен только во время выполнения.
type Rules interface {
	Kind() Kind
	Permits(from, to State) bool
	Recognizes(s State) bool
	Targets(from State) []State
}

// Registry сопоставляет виду сущности его таблицу переходов.
type Registry map[Kind]Rules

// NewRegistry собирает реестр из набора таблиц.
func NewRegistry(rules ...Rules) Registry {
	r := make(Registry, len(rules))
	for _, rule := range rules {
		r[rule.Kind()] = rule
	}
	return r
}

// Lookup возвращает таблицу для вида сущности.
func (r Registry) Lookup(kind Kind) (Rules, error) {
	rules, ok := r[kind]
	if !ok {
		return nil, shared.NewDomainError("lifecycle", "Lookup", shared.ErrInvalidInput,
			fmt.Sprintf("no transition table for kind %q", kind))
	}
	return rules, nil
}
