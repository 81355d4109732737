package gateway

// Upstream wire shapes. These structs exist only inside this package; both
// endpoints answer in an Elasticsearch envelope.

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source sourceDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type resolverResponse struct {
	Hits struct {
		Hits []struct {
			Source sourceDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type sourceDoc struct {
	RID  string `json:"rid"`
	Item struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Types       []struct {
			Name string `json:"name"`
		} `json:"types"`
	} `json:"item"`
	RRID struct {
		Curie          string `json:"curie"`
		ProperCitation string `json:"properCitation"`
	} `json:"rrid"`
	Mentions struct {
		Count int `json:"count"`
	} `json:"mentions"`
}

func (r searchResponse) normalize() []Hit {
	hits := make([]Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		doc := h.Source
		types := make([]string, 0, len(doc.Item.Types))
		for _, t := range doc.Item.Types {
			if t.Name != "" {
				types = append(types, t.Name)
			}
		}
		hits = append(hits, Hit{
			SourceID:    doc.RID,
			Name:        doc.Item.Name,
			Description: doc.Item.Description,
			URL:         doc.Item.URL,
			Types:       types,
			Identifier:  doc.RRID.Curie,
		})
	}
	return hits
}

// normalize reduces a resolver envelope to one canonical record. The second
// return is false when the hit set is empty (identifier unknown upstream).
func (r resolverResponse) normalize(curie string) (CanonicalRecord, bool) {
	if len(r.Hits.Hits) == 0 {
		return CanonicalRecord{}, false
	}
	doc := r.Hits.Hits[0].Source

	recordIdentifier := doc.RRID.Curie
	if recordIdentifier == "" {
		recordIdentifier = curie
	}
	resourceType := ""
	if len(doc.Item.Types) > 0 {
		resourceType = doc.Item.Types[0].Name
	}
	return CanonicalRecord{
		Name:         doc.Item.Name,
		Identifier:   recordIdentifier,
		Description:  doc.Item.Description,
		URL:          doc.Item.URL,
		ResourceType: resourceType,
		Citation:     doc.RRID.ProperCitation,
		MentionCount: doc.Mentions.Count,
	}, true
}
