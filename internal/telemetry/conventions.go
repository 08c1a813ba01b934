package telemetry

// Attribute names used on spans and metrics.
const (
	AttrMCPToolName    = "mcp.tool.name"
	AttrMCPToolSuccess = "mcp.tool.result.success"
	AttrMCPToolError   = "mcp.tool.result.error"
	AttrMCPTransport   = "mcp.transport"

	AttrWorkbook      = "wps.workbook"
	AttrWebhookAction = "wps.webhook.action"
	AttrWebhookURL    = "wps.webhook.url"
	AttrRequestID     = "wps.request.id"

	AttrSheetID        = "wps.sheet.id"
	AttrTableName      = "wps.table.name"
	AttrFilter         = "wps.query.filter"
	AttrScanPages      = "wps.scan.pages"
	AttrScanRecords    = "wps.scan.records"
	AttrScanTruncated  = "wps.scan.truncated"
	AttrBatchItems     = "wps.batch.items"
	AttrBatchSucceeded = "wps.batch.succeeded"
)

// Span names
const (
	SpanNameToolExecute   = "mcp.tool.execute"
	SpanNameWebhookInvoke = "webhook.invoke"
	SpanNameQueryScan     = "query.scan"
	SpanNameQueryBatch    = "query.batch"
)
