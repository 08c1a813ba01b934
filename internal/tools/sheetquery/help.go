package sheetquery

import "github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"

// ProvideExtendedInfo implements tools.ExtendedHelpProvider.
func (t *SheetQueryTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Discover tables and column names",
				Arguments: map[string]any{
					"function": FunctionListTables,
				},
				ExpectedResult: "Each table with its id and columns",
			},
			{
				Description: "Find parts by partial part number and exact level",
				Arguments: map[string]any{
					"function":   FunctionSearch,
					"table_name": "Parts",
					"criteria": []map[string]any{
						{"columnName": "PartNo", "op": "Contains", "searchValue": "A100"},
						{"columnName": "Level", "op": "Equals", "searchValue": "F"},
					},
					"return_columns": []string{"PartNo", "Description", "Level"},
					"max_records":    20,
				},
				ExpectedResult: "Matching records, criteriaDescription, totalCount and truncated",
			},
			{
				Description: "Look up a list of part numbers pasted from a spreadsheet",
				Arguments: map[string]any{
					"function":   FunctionBatchSearch,
					"table_name": "Parts",
					"batch_text": "id\tPartNo\nfirst\tA100\nsecond\tB200",
				},
				ExpectedResult: "One result per row, in input order; failed rows carry an error instead of records",
			},
			{
				Description: "Run a batch from an Excel file with a Contains operator",
				Arguments: map[string]any{
					"function":         FunctionBatchSearch,
					"table_name":       "Parts",
					"batch_file":       "/path/to/queries.xlsx",
					"default_operator": "Contains",
				},
			},
			{
				Description: "Search two tables at once",
				Arguments: map[string]any{
					"function": FunctionMultiSearch,
					"searches": []map[string]any{
						{"tableName": "Parts", "criteria": []map[string]any{{"columnName": "PartNo", "op": "Equals", "searchValue": "A100"}}},
						{"tableName": "Stock", "criteria": []map[string]any{{"columnName": "PartNo", "op": "Equals", "searchValue": "A100"}}},
					},
				},
			},
			{
				Description: "Resolve photos returned by a search",
				Arguments: map[string]any{
					"function":   FunctionGetImageURLs,
					"table_name": "Parts",
					"cells":      []map[string]any{{"recordId": "r12", "field": "Photo"}},
				},
				ExpectedResult: "A URL or an error for every requested cell",
			},
		},
		CommonPatterns: []string{
			"Call list_tables first, then search using the exact column names it reports",
			"Use Contains for partial matches and Equals for exact codes",
			"Use batch_search instead of many search calls when checking a list of values",
			"Ask for return_columns to keep large tables readable",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "unknown column error",
				Solution: "Column names are matched ignoring case and spacing; check the suggestions in the error or call list_tables.",
			},
			{
				Problem:  "truncated is true and originalTotalCount ends with '+'",
				Solution: "More rows matched than max_records. Narrow the criteria or raise max_records up to the configured limit.",
			},
			{
				Problem:  "remote script error or timeout",
				Solution: "The AirScript webhook failed or took too long. Check the script's logs in the spreadsheet and the token configured for the workbook.",
			},
			{
				Problem:  "a batch row failed while others succeeded",
				Solution: "Each row is independent. Read that row's error; a row whose cells are all blank has no criteria and is rejected.",
			},
		},
		ParameterDetails: map[string]string{
			"criteria":         "Array of {columnName, op, searchValue}. searchValue may be a string, number or boolean; an empty string counts as missing. Empty and NotEmpty ignore searchValue.",
			"max_records":      "Values of zero or below use the workbook default; values above the configured limit are clamped to it.",
			"batch_text":       "First row is the header. Header cells may carry an operator suffix such as 'PartNo:Contains'. Blank cells are skipped.",
			"id_column":        "Names the header of the id column. Rows without an id are named row-N.",
			"workbook":         "Name of a workbook from the configuration file. Omit when only one is configured.",
			"searches":         "Array of {tableName, criteria, returnColumns, maxRecords}. Each search succeeds or fails on its own.",
			"default_operator": "Applies to batch columns that have no ':Operator' suffix.",
		},
		WhenToUse:    "Looking up rows in WPS/Kdocs spreadsheets that expose an AirScript webhook: part numbers, inventory, price lists and similar tables.",
		WhenNotToUse: "Writing or editing spreadsheet data, which this tool does not support.",
	}
}
