package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

type call struct {
	cypher string
	params map[string]any
	inTx   bool
}

type fakeResult struct {
	records []*neo4j.Record
	pos     int
}

func (r *fakeResult) Next(context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.pos-1] }

type fakeSession struct {
	calls   []call
	rows    []*neo4j.Record
	failAt  int
	closed  bool
	written bool
	inTx    bool
}

func (s *fakeSession) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	s.calls = append(s.calls, call{cypher: cypher, params: params, inTx: s.inTx})
	if s.failAt > 0 && len(s.calls) == s.failAt {
		return nil, errors.New("constraint violated")
	}
	return &fakeResult{records: s.rows}, nil
}

func (s *fakeSession) ExecuteWrite(ctx context.Context, work func(Runner) error) error {
	s.inTx = true
	defer func() { s.inTx = false }()
	if err := work(s); err != nil {
		return err
	}
	s.written = true
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type item struct {
	ID   string
	Name string
}

func itemToMap(i item) map[string]any { return map[string]any{"id": i.ID, "name": i.Name} }

func itemFromRecord(rec *neo4j.Record) (item, error) {
	v, ok := rec.Get("n")
	if !ok {
		return item{}, fmt.Errorf("missing n")
	}
	node := v.(dbtype.Node)
	return item{ID: node.Props["id"].(string), Name: node.Props["name"].(string)}, nil
}

func nodeRecord(id, name string) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Props: map[string]any{"id": id, "name": name}}},
	}
}

func newTestRepo(sess *fakeSession, opts ...Neo4jOption[item, string]) *Neo4jRepo[item, string] {
	opts = append(opts, WithSessionFactory[item, string](func(context.Context) Session { return sess }))
	return NewNeo4jRepo[item, string](nil, "Item", itemToMap, itemFromRecord, opts...)
}

func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[item, string](nil, "Item", nil, nil)
	if r.idKey != "id" || r.label != "Item" {
		t.Fatalf("unexpected defaults idKey=%s label=%s", r.idKey, r.label)
	}
	r = NewNeo4jRepo[item, string](nil, "Item", nil, nil, WithIDKey[item, string]("uuid"))
	if r.idKey != "uuid" {
		t.Fatalf("expected idKey=uuid, got %s", r.idKey)
	}
}

func TestGet(t *testing.T) {
	sess := &fakeSession{rows: []*neo4j.Record{nodeRecord("a", "alpha")}}
	got, err := newTestRepo(sess).Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "alpha" {
		t.Fatalf("expected alpha, got %+v", got)
	}
	if sess.calls[0].cypher != "MATCH (n:Item {id: $id}) RETURN n" || sess.calls[0].params["id"] != "a" {
		t.Fatalf("unexpected call %+v", sess.calls[0])
	}
	if !sess.closed {
		t.Fatal("session not closed")
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := newTestRepo(&fakeSession{}).Get(context.Background(), "zzz")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	sess := &fakeSession{rows: []*neo4j.Record{nodeRecord("a", "alpha"), nodeRecord("b", "beta")}}
	items, err := newTestRepo(sess).List(context.Background(), ListOpts{Offset: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].ID != "b" {
		t.Fatalf("unexpected items %+v", items)
	}
	if sess.calls[0].params["limit"] != 100 || sess.calls[0].params["offset"] != 5 {
		t.Fatalf("unexpected params %v", sess.calls[0].params)
	}
}

func TestQuery(t *testing.T) {
	sess := &fakeSession{rows: []*neo4j.Record{nodeRecord("a", "alpha")}}
	items, err := newTestRepo(sess).Query(context.Background(), "MATCH (n:Item) WHERE n.name = $name RETURN n", map[string]any{"name": "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "alpha" || sess.calls[0].params["name"] != "alpha" {
		t.Fatalf("unexpected result %+v / %+v", items, sess.calls)
	}

	sess = &fakeSession{failAt: 1}
	if _, err := newTestRepo(sess).Query(context.Background(), "MATCH (n) RETURN n", nil); err == nil {
		t.Fatal("expected error")
	}
	if !sess.closed {
		t.Fatal("session not closed")
	}
}

func TestUpsertAll(t *testing.T) {
	sess := &fakeSession{}
	r := newTestRepo(sess, WithMergeSuffix[item, string]("WITH n MERGE (t:Tag {name: $props.name})"))
	n, err := r.UpsertAll(context.Background(), []item{{"a", "alpha"}, {"b", "beta"}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if !sess.written || len(sess.calls) != 2 {
		t.Fatalf("expected 2 statements in one tx, got %d (written=%v)", len(sess.calls), sess.written)
	}
	for _, c := range sess.calls {
		if !c.inTx {
			t.Fatal("statement ran outside the write transaction")
		}
		if !strings.HasPrefix(c.cypher, "MERGE (n:Item {id: $id}) SET n = $props WITH n MERGE") {
			t.Fatalf("unexpected cypher %q", c.cypher)
		}
	}
	if sess.calls[1].params["id"] != "b" {
		t.Fatalf("unexpected params %v", sess.calls[1].params)
	}
}

func TestUpsertAll_FailureWritesNothing(t *testing.T) {
	sess := &fakeSession{failAt: 2}
	n, err := newTestRepo(sess).UpsertAll(context.Background(), []item{{"a", "x"}, {"b", "y"}, {"c", "z"}})
	if err == nil || n != 0 {
		t.Fatalf("expected (0, err), got (%d, %v)", n, err)
	}
	if sess.written {
		t.Fatal("transaction should not commit")
	}
}

func TestUpsertAll_Empty(t *testing.T) {
	sess := &fakeSession{}
	n, err := newTestRepo(sess).UpsertAll(context.Background(), nil)
	if err != nil || n != 0 || len(sess.calls) != 0 {
		t.Fatalf("expected no-op, got (%d, %v, %d calls)", n, err, len(sess.calls))
	}
}
