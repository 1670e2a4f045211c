package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/resume-screener/internal/tree"
)

func TestFrame_AppendExtendsSchema(t *testing.T) {
	f := New("a")
	f.Append(tree.M("a", tree.Str("1")))
	f.Append(tree.M("b", tree.Str("2")))

	assert.Equal(t, []string{"a", "b"}, f.Columns())
	assert.Equal(t, 2, f.Len())
	assert.True(t, f.Value(0, "b").IsNull())
	assert.Equal(t, "2", f.Value(1, "b").Text())
	assert.True(t, f.Value(1, "a").IsNull())
}

func TestFrame_Project(t *testing.T) {
	f := New("a", "b", "c")
	f.Append(tree.M("a", tree.Str("x")), tree.M("c", tree.Int(3)))

	p, err := f.Project("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, p.Columns())
	assert.Equal(t, "3", p.Value(0, "c").Text())
	assert.Equal(t, "x", p.Value(0, "a").Text())

	t.Run("declared but empty column", func(t *testing.T) {
		p, err := f.Project("b")
		require.NoError(t, err)
		assert.True(t, p.Value(0, "b").IsNull())
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := f.Project("a", "zzz")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingColumn))
	})
}

func TestFrame_FilterHeadDistinct(t *testing.T) {
	f := New("titulo", "recrutador")
	f.Append(tree.M("titulo", tree.Str("Dev")), tree.M("recrutador", tree.Str("Ana")))
	f.Append(tree.M("titulo", tree.Str("QA")), tree.M("recrutador", tree.Str("Ana")))
	f.Append(tree.M("titulo", tree.Str("Dev")), tree.M("recrutador", tree.Str("Bia")))
	f.Append(tree.M("recrutador", tree.Str("Bia")))

	assert.Equal(t, []string{"Dev", "QA"}, f.Distinct("titulo"))

	devs := f.Filter(func(r Record) bool { return r.Text("titulo") == "Dev" })
	assert.Equal(t, 2, devs.Len())
	assert.Equal(t, f.Columns(), devs.Columns())

	assert.Equal(t, 1, f.Head(1).Len())
	assert.Equal(t, 4, f.Head(0).Len())
}

func TestLeftJoin(t *testing.T) {
	prospects := New("codigo", "nome", "codigo_vaga")
	prospects.Append(tree.M("codigo", tree.Int(1)), tree.M("nome", tree.Str("Prospect One")), tree.M("codigo_vaga", tree.Str("J1")))
	prospects.Append(tree.M("codigo", tree.Str("2")), tree.M("codigo_vaga", tree.Str("J2")))
	prospects.Append(tree.M("codigo", tree.Str("9")), tree.M("codigo_vaga", tree.Str("J1")))
	prospects.Append(tree.M("codigo_vaga", tree.Str("J1")))

	applicants := New("codigo", "nome", "email")
	applicants.Append(tree.M("codigo", tree.Str("1")), tree.M("nome", tree.Str("Applicant One")), tree.M("email", tree.Str("one@x")))
	applicants.Append(tree.M("codigo", tree.Str(" 2 ")), tree.M("nome", tree.Str("Applicant Two")), tree.M("email", tree.Str("two@x")))

	joined, err := LeftJoin(prospects, applicants, "codigo", "codigo")
	require.NoError(t, err)

	assert.Equal(t, []string{"codigo", "nome", "codigo_vaga", "email"}, joined.Columns())
	require.Equal(t, prospects.Len(), joined.Len())

	assert.Equal(t, "Prospect One", joined.Value(0, "nome").Text(), "left side wins on collision")
	assert.Equal(t, "one@x", joined.Value(0, "email").Text(), "numeric key matches string key")
	assert.True(t, joined.Value(1, "nome").IsNull(), "applicant-side nome is discarded")
	assert.Equal(t, "two@x", joined.Value(1, "email").Text(), "keys are trimmed")
	assert.True(t, joined.Value(2, "email").IsNull(), "unmatched row kept with nulls")
	assert.True(t, joined.Value(3, "email").IsNull(), "null key never matches")
}

func TestLeftJoin_MissingKey(t *testing.T) {
	_, err := LeftJoin(New("a"), New("b"), "a", "missing")
	assert.ErrorIs(t, err, ErrMissingColumn)
	_, err = LeftJoin(New("a"), New("b"), "missing", "b")
	assert.ErrorIs(t, err, ErrMissingColumn)
}
