package registry

import "encoding/json"

// Tool names. AskUser is a pseudo-tool: the orchestrator intercepts it and
// ends the turn with the question instead of dispatching an executor.
const (
	ToolGetSchema    = "get_schema"
	ToolGetStats     = "get_stats"
	ToolRunSQL       = "run_sql"
	ToolCreateChart  = "create_chart"
	ToolCreateGraph  = "create_graph"
	ToolTrainModel   = "train_model"
	ToolForecast     = "forecast"
	ToolAskUser      = "ask_user"
	ToolUpdateMemory = "update_memory"
	ToolCreateReport = "create_report"
)

// Default returns the registry with the fixed Orbital tool set. Order is
// stable: data understanding first, then manipulation, analytics, and
// presentation, mirroring the analyst workflow the system prompt steers
// the model toward.
func Default() *Registry {
	r, err := New(defaultSpecs)
	if err != nil {
		// Specs are compile-time constants; a parse failure is a programming error.
		panic(err)
	}
	return r
}

var defaultSpecs = []ToolSpec{
	{
		Name:        ToolGetSchema,
		Description: "Get the schema of all available tables, including column names and types. Use this first to understand what data is available.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}, "required": []}`),
	},
	{
		Name:        ToolGetStats,
		Description: "Get statistics for a specific table, including row counts, data types, null ratios, and summary statistics for numeric/categorical columns.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table": {"type": "string", "description": "Name of the table to analyze"}
			},
			"required": ["table"]
		}`),
	},
	{
		Name: ToolRunSQL,
		Description: "Execute a SQL query against the data. Use for:\n" +
			"- SELECT queries to retrieve and filter data\n" +
			"- CREATE TABLE <name> AS SELECT to save intermediate results\n" +
			"- JOINs across source tables and previously created derived tables\n" +
			"- Aggregations (GROUP BY, COUNT, SUM, AVG, etc.)\n\n" +
			"Tables are referenced by short name. Use standard SQL syntax.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"sql": {"type": "string", "description": "SQL statement to execute"}
			},
			"required": ["sql"]
		}`),
	},
	{
		Name:        ToolCreateChart,
		Description: "Create a chart visualization from table data. Supports bar, line, scatter, pie, and area charts.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table": {"type": "string", "description": "Name of the table to visualize"},
				"chart_type": {
					"type": "string",
					"enum": ["bar", "line", "scatter", "pie", "area"],
					"description": "Type of chart to create"
				},
				"x": {"type": "string", "description": "Column for x-axis"},
				"y": {"type": "string", "description": "Column for y-axis (or values for pie chart)"},
				"title": {"type": "string", "description": "Optional chart title"},
				"color": {"type": "string", "description": "Optional column for color grouping"},
				"limit": {
					"type": "integer",
					"description": "Fetch at most this many rows before capping to top_n (default: 100)",
					"default": 100
				},
				"x_label": {"type": "string", "description": "Human-readable label for the x-axis (auto-generated from column name if omitted)"},
				"y_label": {"type": "string", "description": "Human-readable label for the y-axis (auto-generated from column name if omitted)"},
				"top_n": {
					"type": "integer",
					"description": "Number of categories/data points to keep (default: 10, capped at 20)",
					"default": 10
				},
				"group_other": {
					"type": "boolean",
					"description": "When more than top_n rows exist, roll the remainder into an 'Other' bucket (numeric y only). On by default; pass false to drop the tail instead",
					"default": true
				},
				"series": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Column names to plot as separate y-axis series (for wide-format data like actual + predicted). Overrides y for data."
				},
				"reference_lines": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"axis": {"type": "string", "enum": ["x", "y"]},
							"value": {"type": ["string", "number"]},
							"label": {"type": "string"}
						},
						"required": ["axis", "value"]
					},
					"description": "Reference lines to draw on the chart (e.g., train/test split cutoff)."
				},
				"dashed": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Series names that should render with dashed lines (e.g., predicted values)."
				}
			},
			"required": ["table", "chart_type", "x", "y"]
		}`),
	},
	{
		Name: ToolCreateGraph,
		Description: "Create a network graph visualization from a table of edges. " +
			"Each row becomes an edge from the source column value to the target column value. " +
			"Requests producing more than 200 distinct nodes are rejected; aggregate the data first.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table": {"type": "string", "description": "Name of the table containing edge data"},
				"source": {"type": "string", "description": "Column holding the edge source node"},
				"target": {"type": "string", "description": "Column holding the edge target node"},
				"weight": {"type": "string", "description": "Optional numeric column for edge weight"},
				"title": {"type": "string", "description": "Optional graph title"},
				"layout": {
					"type": "string",
					"enum": ["force", "circular", "hierarchical"],
					"description": "Layout hint for the renderer (default: force)"
				},
				"limit": {
					"type": "integer",
					"description": "Fetch at most this many edge rows (default: 500)",
					"default": 500
				}
			},
			"required": ["table", "source", "target"]
		}`),
	},
	{
		Name: ToolTrainModel,
		Description: "Train a supervised ML model (regression or classification) on a table. " +
			"Automatically detects model type from the target column, selects features, " +
			"trains a model, and saves predictions + residuals as a new table for analysis.\n\n" +
			"Use when you want to:\n" +
			"- Predict a numeric or categorical target from other columns\n" +
			"- Measure how well available features explain a target (R2, accuracy)\n" +
			"- Identify which features matter most (feature importances)\n" +
			"- Analyze prediction errors (residuals) to discover missing patterns",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table": {"type": "string", "description": "Name of the table containing the training data"},
				"target": {"type": "string", "description": "Column to predict"},
				"features": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Feature columns to use. If omitted, auto-detects all numeric columns and one-hot encodes low-cardinality categoricals."
				},
				"model_type": {
					"type": "string",
					"enum": ["auto", "regression", "classification"],
					"description": "Model type. 'auto' detects from target: text/bool/few-unique means classification, otherwise regression.",
					"default": "auto"
				},
				"algorithm": {
					"type": "string",
					"enum": ["random_forest", "gradient_boosting", "linear"],
					"description": "ML algorithm to use (default: random_forest)",
					"default": "random_forest"
				},
				"test_size": {
					"type": "number",
					"description": "Fraction of data for test set (default: 0.2)",
					"default": 0.2
				},
				"random_state": {
					"type": "integer",
					"description": "Random seed for reproducibility (default: 42)",
					"default": 42
				},
				"split_by": {
					"type": "string",
					"description": "Column name for temporal/ordered train-test split. When set, data is sorted by this column and split chronologically (first rows = train, last rows = test) instead of randomly. Use for time-series data to prevent data leakage. Column must be numeric."
				}
			},
			"required": ["table", "target"]
		}`),
	},
	{
		Name: ToolForecast,
		Description: "Forecast future values of a numeric column over an ordered column " +
			"(time index, sequence number). Fits a linear trend plus optional seasonal pattern, " +
			"saves the forecast as a new table, and returns a chart with the forecast dashed.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table": {"type": "string", "description": "Name of the table containing the series"},
				"order_by": {"type": "string", "description": "Numeric column defining the series order"},
				"value": {"type": "string", "description": "Numeric column to forecast"},
				"horizon": {
					"type": "integer",
					"description": "Number of future points to forecast (default: 12, max: 120)",
					"default": 12
				},
				"season_length": {
					"type": "integer",
					"description": "Optional seasonal period in points (e.g., 12 for monthly data with yearly seasonality)"
				}
			},
			"required": ["table", "order_by", "value"]
		}`),
	},
	{
		Name: ToolAskUser,
		Description: "Ask the user a clarifying question before continuing. Use this when the " +
			"request is vague or ambiguous and you need more information to proceed effectively.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"question": {"type": "string", "description": "The clarifying question to ask the user"}
			},
			"required": ["question"]
		}`),
	},
	{
		Name: ToolUpdateMemory,
		Description: "Store important facts, user preferences, or analysis conclusions in session memory. " +
			"Call this when you discover something worth remembering for later turns. " +
			"Memory persists for the entire session and is shown to you at the start of each turn.\n\n" +
			"When to use:\n" +
			"- After discovering a key insight (revenue numbers, patterns, etc.)\n" +
			"- When user corrects you or states a preference\n" +
			"- After completing a significant analysis\n" +
			"- To remove outdated information\n\n" +
			"Keep memories concise - store the insight, not the raw data.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["add", "remove"],
					"description": "Add new memory or remove outdated one"
				},
				"category": {
					"type": "string",
					"enum": ["fact", "preference", "correction", "conclusion"],
					"description": "Type of memory: fact (data observed), preference (user style), correction (user clarification), conclusion (analysis insight)"
				},
				"content": {"type": "string", "description": "The thing to remember (be concise)"}
			},
			"required": ["action", "category", "content"]
		}`),
	},
	{
		Name: ToolCreateReport,
		Description: "Create a shareable report summarizing analysis findings. " +
			"Use after completing an analysis to give the user a clean, " +
			"shareable summary. Include narrative text explaining what " +
			"was found and embed key charts. Keep to 3-6 sections.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Report title (e.g., 'Home Price Prediction Analysis')"},
				"sections": {
					"type": "array",
					"description": "Ordered list of report sections (max 8). Each section is either narrative text or an embedded chart.",
					"items": {
						"type": "object",
						"properties": {
							"type": {
								"type": "string",
								"enum": ["text", "chart"],
								"description": "'text' for narrative paragraphs, 'chart' for embedded visualizations"
							},
							"content": {"type": "string", "description": "Markdown text (for text sections)"},
							"title": {"type": "string", "description": "Chart title (for chart sections)"},
							"table": {"type": "string", "description": "Table name to pull chart data from (for chart sections)"},
							"chart_type": {
								"type": "string",
								"enum": ["bar", "line", "scatter", "pie", "area"],
								"description": "Chart type (for chart sections)"
							},
							"x": {"type": "string", "description": "Column for x-axis"},
							"y": {"type": "string", "description": "Column for y-axis"},
							"color": {"type": "string", "description": "Optional column for color grouping"}
						},
						"required": ["type"]
					}
				}
			},
			"required": ["title", "sections"]
		}`),
	},
}
