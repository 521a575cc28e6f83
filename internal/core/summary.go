package core

type (
	// CategoryTotal is the summed spending for one category. Category is
	// the empty string for uncategorized expenses.
	CategoryTotal struct {
		Category string `json:"category"`
		Total    Money  `json:"total"`
	}

	// MonthTotal is the summed spending for one calendar month, keyed as
	// YYYY-MM.
	MonthTotal struct {
		Month string `json:"month"`
		Total Money  `json:"total"`
	}

	// Summary aggregates one user's spending for chart rendering.
	Summary struct {
		ByCategory []CategoryTotal `json:"byCategory"`
		ByMonth    []MonthTotal    `json:"byMonth"`
	}
)
