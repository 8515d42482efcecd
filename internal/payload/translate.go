package payload

// SearchFromIntake builds the document for the search item of one source.
func SearchFromIntake(in Intake, index int, queries []string) Search {
	req := in.Request
	return Search{
		Keywords:         append([]string(nil), req.Keywords...),
		Source:           req.Sources[index],
		SourceIndex:      index,
		TotalSources:     len(req.Sources),
		ExtractionMode:   req.ExtractionMode,
		QualityThreshold: req.QualityThreshold,
		AnalysisPrompt:   req.AnalysisPrompt,
		Queries:          queries,
		Results:          []Candidate{},
	}
}

// FetchFromSearch builds the document for one selected URL. Indexes are 1-based
// to match how operators read "url 2 of 3".
func FetchFromSearch(in Search, url Candidate, index, selected int, prompt string) Fetch {
	return Fetch{
		Keywords:        append([]string(nil), in.Keywords...),
		Source:          in.Source,
		AnalysisPrompt:  in.AnalysisPrompt,
		UserPrompt:      prompt,
		URL:             url,
		URLIndex:        index + 1,
		TotalURLs:       selected,
		TotalFoundURLs:  len(in.Results),
		URLLimitApplied: len(in.Results) > selected,
	}
}

// AnalysisFromFetch builds the document for one analysis kind. Every kind
// receives the same copy of the fetch document.
func AnalysisFromFetch(in Fetch, kind string) Analysis {
	copied := in
	copied.Keywords = append([]string(nil), in.Keywords...)
	if in.Summary != nil {
		summary := *in.Summary
		copied.Summary = &summary
	}
	return Analysis{Fetch: copied, AnalysisType: kind}
}
