package query

import (
	"encoding/json"
	"testing"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partsColumns() *sheets.ColumnSet {
	return sheets.NewColumnSet("PartNo", "Level", "Qty", "Photo")
}

func TestCompile_PreservesOrderAndShape(t *testing.T) {
	filter, err := Compile(partsColumns(), []SearchCriterion{
		Criterion("PartNo", Contains, "A100"),
		Criterion("Level", Equals, "F"),
		Criterion("Photo", NotEmpty, ""),
	})
	require.NoError(t, err)

	assert.Equal(t, "AND", filter.Mode())
	assert.Equal(t, 3, filter.Len())
	assert.Equal(t, "PartNo Contains 'A100' AND Level Equals 'F' AND Photo NotEmpty", filter.Describe())

	raw, err := json.Marshal(filter)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"AND","criteria":[
		{"field":"PartNo","op":"Contains","values":["A100"]},
		{"field":"Level","op":"Equals","values":["F"]},
		{"field":"Photo","op":"NotEmpty"}
	]}`, string(raw))
}

func TestCompile_CanonicalColumnSpelling(t *testing.T) {
	filter, err := Compile(partsColumns(), []SearchCriterion{Criterion("partno", Equals, "A1")})
	require.NoError(t, err)
	assert.Equal(t, "PartNo", filter.Clauses()[0].Field)
}

func TestCompile_UnknownColumn(t *testing.T) {
	_, err := Compile(partsColumns(), []SearchCriterion{Criterion("PrtNo", Equals, "A1")})
	require.Error(t, err)

	var verr *sheets.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "columnName", verr.Field)
	assert.Equal(t, []string{"PartNo", "Level", "Qty", "Photo"}, verr.Available)
	assert.Contains(t, verr.Suggestions, "PartNo")
}

func TestCompile_NoMetadataTrustsColumns(t *testing.T) {
	filter, err := Compile(nil, []SearchCriterion{Criterion("Anything", Equals, "1")})
	require.NoError(t, err)
	assert.Equal(t, "Anything", filter.Clauses()[0].Field)
}

func TestCompile_InvalidOperator(t *testing.T) {
	_, err := Compile(partsColumns(), []SearchCriterion{{ColumnName: "PartNo", Operator: "Like", SearchValue: Text("x")}})
	require.Error(t, err)

	var verr *sheets.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "operator", verr.Field)
	assert.Equal(t, "Like", verr.Value)
	assert.Len(t, verr.Valid, 13)
	assert.Contains(t, err.Error(), "Intersected")
}

func TestCompile_OperatorIsCaseSensitive(t *testing.T) {
	_, err := Compile(nil, []SearchCriterion{{ColumnName: "PartNo", Operator: "equals", SearchValue: Text("x")}})
	assert.True(t, sheets.IsValidation(err))
}

func TestCompile_MissingValue(t *testing.T) {
	for name, v := range map[string]SearchValue{"absent": {}, "empty string": Text("")} {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(partsColumns(), []SearchCriterion{{ColumnName: "PartNo", Operator: "Equals", SearchValue: v}})
			var verr *sheets.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "searchValue", verr.Field)
			assert.Empty(t, verr.Value)
			assert.Contains(t, verr.Message, `"PartNo"`)
		})
	}
}

func TestCompile_ZeroIsAValue(t *testing.T) {
	var c SearchCriterion
	require.NoError(t, json.Unmarshal([]byte(`{"columnName":"Qty","searchValue":0,"op":"Equals"}`), &c))

	filter, err := Compile(partsColumns(), []SearchCriterion{c, Criterion("Level", Equals, "0")})
	require.NoError(t, err)

	clauses := filter.Clauses()
	assert.Equal(t, []string{"0"}, clauses[0].Values)
	assert.Equal(t, []string{"0"}, clauses[1].Values)
}

func TestCompile_EmptyOperatorsIgnoreValue(t *testing.T) {
	filter, err := Compile(partsColumns(), []SearchCriterion{
		{ColumnName: "Photo", Operator: "Empty", SearchValue: Text("ignored")},
	})
	require.NoError(t, err)
	assert.Nil(t, filter.Clauses()[0].Values)
}

func TestCompile_BlankColumns(t *testing.T) {
	criteria := []SearchCriterion{
		Criterion("  ", Equals, "x"),
		Criterion("Level", Equals, "F"),
	}

	_, err := Compile(partsColumns(), criteria)
	assert.True(t, sheets.IsValidation(err))

	filter, err := Compile(partsColumns(), criteria, DropBlankColumns())
	require.NoError(t, err)
	assert.Equal(t, "Level Equals 'F'", filter.Describe())

	_, err = Compile(partsColumns(), []SearchCriterion{Criterion("", Equals, "x")}, DropBlankColumns())
	var verr *sheets.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "criteria", verr.Field)
}

func TestCompile_DropBlankStillAbortsOnBadOperator(t *testing.T) {
	_, err := Compile(partsColumns(), []SearchCriterion{
		Criterion("", Equals, "x"),
		{ColumnName: "Level", Operator: "Bogus", SearchValue: Text("F")},
	}, DropBlankColumns())
	assert.True(t, sheets.IsValidation(err))
}

func TestSearchCriterion_UnmarshalAliases(t *testing.T) {
	var c SearchCriterion
	require.NoError(t, json.Unmarshal([]byte(`{"column":"Qty","value":2.5,"operator":"Greater"}`), &c))
	assert.Equal(t, "Qty", c.ColumnName)
	assert.Equal(t, "Greater", c.Operator)
	assert.Equal(t, "2.5", c.SearchValue.String())

	require.NoError(t, json.Unmarshal([]byte(`{"columnName":"Qty","searchValue":null,"op":"Empty"}`), &c))
	assert.False(t, c.SearchValue.Provided())

	require.NoError(t, json.Unmarshal([]byte(`{"columnName":"Flag","searchValue":true,"op":"Equals"}`), &c))
	assert.Equal(t, "true", c.SearchValue.String())
}

func TestProperty_CompileIsDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	criterionGen := gopter.CombineGens(
		gen.OneConstOf("PartNo", "Level", "Qty", "Photo"),
		gen.OneConstOf(Equals, NotEqu, Greater, GreaterEqu, Less, LessEqu, BeginWith, EndWith, Contains, NotContains, Intersected, Empty, NotEmpty),
		gen.AlphaString(),
	).Map(func(v []interface{}) SearchCriterion {
		return Criterion(v[0].(string), v[1].(Operator), v[2].(string))
	})

	properties.Property("same input yields the same description and JSON", prop.ForAll(
		func(criteria []SearchCriterion) bool {
			a, errA := Compile(partsColumns(), criteria)
			b, errB := Compile(partsColumns(), criteria)
			if (errA == nil) != (errB == nil) {
				return false
			}
			if errA != nil {
				return errA.Error() == errB.Error()
			}
			ja, _ := json.Marshal(a)
			jb, _ := json.Marshal(b)
			return a.Describe() == b.Describe() && string(ja) == string(jb) && a.Len() == len(criteria)
		},
		gen.SliceOfN(4, criterionGen),
	))

	properties.Property("a criterion compiles iff its operator needs no value or has one", prop.ForAll(
		func(c SearchCriterion) bool {
			_, err := Compile(partsColumns(), []SearchCriterion{c})
			op := Operator(c.Operator)
			want := !op.RequiresValue() || c.SearchValue.Provided()
			return (err == nil) == want
		},
		criterionGen,
	))

	properties.TestingRun(t)
}

func TestParseOperator(t *testing.T) {
	for _, name := range OperatorNames() {
		op, err := ParseOperator(" " + name + " ")
		require.NoError(t, err)
		assert.Equal(t, name, string(op))
	}
	assert.False(t, Empty.RequiresValue())
	assert.False(t, NotEmpty.RequiresValue())
	assert.True(t, Intersected.RequiresValue())
}
