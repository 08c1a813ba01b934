package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
)

// Target identifies the sheet a scan runs against. SheetID may be empty when
// no metadata was available; the remote script then resolves TableName.
type Target struct {
	SheetID   string
	TableName string
}

func (t Target) String() string {
	if t.SheetID == "" {
		return fmt.Sprintf("%q", t.TableName)
	}
	return fmt.Sprintf("%q (sheet %s)", t.TableName, t.SheetID)
}

// TotalCount is a record count that may only be a lower bound. It marshals as
// a number, or as "N+" when AtLeast is set.
type TotalCount struct {
	N       int
	AtLeast bool
}

func (c TotalCount) String() string {
	if c.AtLeast {
		return strconv.Itoa(c.N) + "+"
	}
	return strconv.Itoa(c.N)
}

func (c TotalCount) MarshalJSON() ([]byte, error) {
	if c.AtLeast {
		return json.Marshal(c.String())
	}
	return []byte(strconv.Itoa(c.N)), nil
}

func (c *TotalCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		digits, atLeast := strings.CutSuffix(s, "+")
		n, err := strconv.Atoi(digits)
		if err != nil {
			return fmt.Errorf("invalid total count %q", s)
		}
		*c = TotalCount{N: n, AtLeast: atLeast}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid total count: %w", err)
	}
	*c = TotalCount{N: n}
	return nil
}

// SearchOutcome is the result of one capped, paginated scan.
type SearchOutcome struct {
	Records            []sheets.Record `json:"records"`
	TotalCount         int             `json:"totalCount"`
	Truncated          bool            `json:"truncated"`
	OriginalTotalCount TotalCount      `json:"originalTotalCount"`
	MaxRecords         int             `json:"maxRecords"`

	Pages int `json:"-"`
}

// project narrows every record to columns. Nil columns keep records whole.
func (o *SearchOutcome) project(columns []string) {
	if len(columns) == 0 {
		return
	}
	for i, rec := range o.Records {
		o.Records[i] = rec.Project(columns)
	}
}
