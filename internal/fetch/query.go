package fetch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/h0rv/rollup/internal/domain"
)

// aliasPrefix names each per-item sub-query: i0, i1, ...
const aliasPrefix = "i"

// rateLimitSelection is appended to every batch so cost can be accounted.
const rateLimitSelection = `
			rateLimit {
				cost
				remaining
				resetAt
			}`

const commentSelection = `
						comments(last: $first) {
							nodes {
								id
								author {
									login
								}
								body
								createdAt
								updatedAt
								url
							}
						}`

const projectFieldSelection = `
						projectItems(first: 10) {
							nodes {
								project {
									title
									number
								}
								fieldValues(first: $first) {
									nodes {
										__typename
										... on ProjectV2ItemFieldTextValue {
											text
											field { ...fieldMeta }
										}
										... on ProjectV2ItemFieldSingleSelectValue {
											name
											field { ...fieldMeta }
										}
										... on ProjectV2ItemFieldDateValue {
											date
											field { ...fieldMeta }
										}
										... on ProjectV2ItemFieldNumberValue {
											number
											field { ...fieldMeta }
										}
										... on ProjectV2ItemFieldIterationValue {
											title
											field { ...fieldMeta }
										}
									}
								}
							}
						}`

const fieldMetaFragment = `
		fragment fieldMeta on ProjectV2FieldConfiguration {
			... on ProjectV2FieldCommon {
				name
				dataType
			}
			... on ProjectV2SingleSelectField {
				options {
					name
				}
			}
		}`

const issueFieldSelection = `
						issueType {
							name
						}
						milestone {
							title
							dueOn
						}
						parent {
							title
							number
						}`

// buildBatchQuery renders one request covering every key in batch. Each key
// becomes an aliased repository lookup bound to its own variables.
func buildBatchQuery(batch []domain.ItemKey, req Request) (string, map[string]interface{}, error) {
	selection, err := selectionFor(req)
	if err != nil {
		return "", nil, err
	}
	field := "issue"
	if req.Subject == domain.KindDiscussion {
		field = "discussion"
	}

	vars := map[string]interface{}{"first": req.PageSize}
	params := []string{"$first: Int!"}

	var body strings.Builder
	for i, key := range batch {
		o, r, n := fmt.Sprintf("o%d", i), fmt.Sprintf("r%d", i), fmt.Sprintf("n%d", i)
		params = append(params, "$"+o+": String!", "$"+r+": String!", "$"+n+": Int!")
		vars[o] = key.Organization
		vars[r] = key.Repository
		vars[n] = key.Number

		fmt.Fprintf(&body, `
			%s%d: repository(owner: $%s, name: $%s) {
				item: %s(number: $%s) {%s
				}
			}`, aliasPrefix, i, o, r, field, n, selection)
	}
	body.WriteString(rateLimitSelection)

	query := "query(" + strings.Join(params, ", ") + ") {" + body.String() + "\n\t\t}"
	if req.Kind == CustomFields {
		query += fieldMetaFragment
	}
	return query, vars, nil
}

func selectionFor(req Request) (string, error) {
	switch req.Kind {
	case Comments:
		return commentSelection, nil
	case CustomFields:
		if req.Subject == domain.KindDiscussion {
			return "", fmt.Errorf("%w: %s for %s", ErrUnsupported, req.Kind, req.Subject)
		}
		return projectFieldSelection, nil
	case IssueFields:
		if req.Subject == domain.KindDiscussion {
			return "", fmt.Errorf("%w: %s for %s", ErrUnsupported, req.Kind, req.Subject)
		}
		return issueFieldSelection, nil
	}
	return "", fmt.Errorf("unknown auxiliary kind %d", req.Kind)
}

// rateLimitPayload is the cost-accounting sub-query response.
type rateLimitPayload struct {
	Cost      int       `json:"cost"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// itemPayload is the union of every selection above; only the fields for the
// requested kind are populated.
type itemPayload struct {
	Item *struct {
		Comments *struct {
			Nodes []struct {
				ID     string `json:"id"`
				Author *struct {
					Login string `json:"login"`
				} `json:"author"`
				Body      string    `json:"body"`
				CreatedAt time.Time `json:"createdAt"`
				UpdatedAt time.Time `json:"updatedAt"`
				URL       string    `json:"url"`
			} `json:"nodes"`
		} `json:"comments"`
		ProjectItems *struct {
			Nodes []struct {
				Project struct {
					Title  string `json:"title"`
					Number int    `json:"number"`
				} `json:"project"`
				FieldValues struct {
					Nodes []fieldValueNode `json:"nodes"`
				} `json:"fieldValues"`
			} `json:"nodes"`
		} `json:"projectItems"`
		IssueType *struct {
			Name string `json:"name"`
		} `json:"issueType"`
		Milestone *struct {
			Title string `json:"title"`
			DueOn string `json:"dueOn"`
		} `json:"milestone"`
		Parent *struct {
			Title  string `json:"title"`
			Number int    `json:"number"`
		} `json:"parent"`
	} `json:"item"`
}

type fieldValueNode struct {
	Typename string   `json:"__typename"`
	Text     *string  `json:"text"`
	Name     *string  `json:"name"`
	Date     *string  `json:"date"`
	Number   *float64 `json:"number"`
	Title    *string  `json:"title"`
	Field    *struct {
		Name     string `json:"name"`
		DataType string `json:"dataType"`
		Options  []struct {
			Name string `json:"name"`
		} `json:"options"`
	} `json:"field"`
}

// decodeBatch maps alias payloads back to keys. Aliases that are null or
// missing (deleted or inaccessible items) are left out of the result.
func decodeBatch(batch []domain.ItemKey, req Request, data map[string]json.RawMessage) (map[domain.ItemKey]Result, error) {
	out := make(map[domain.ItemKey]Result, len(batch))
	for i, key := range batch {
		raw, ok := data[fmt.Sprintf("%s%d", aliasPrefix, i)]
		if !ok || isNull(raw) {
			continue
		}
		var payload itemPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode %s for %s: %w", req.Kind, key, err)
		}
		if payload.Item == nil {
			continue
		}
		out[key] = decodeItem(payload, req.Kind)
	}
	return out, nil
}

func decodeItem(payload itemPayload, kind Kind) Result {
	item := payload.Item
	switch kind {
	case Comments:
		var comments []*domain.Comment
		if item.Comments != nil {
			comments = make([]*domain.Comment, 0, len(item.Comments.Nodes))
			for _, node := range item.Comments.Nodes {
				c := &domain.Comment{
					ID:        node.ID,
					Body:      node.Body,
					CreatedAt: node.CreatedAt,
					UpdatedAt: node.UpdatedAt,
					URL:       node.URL,
				}
				// Handle deleted users (author is nil)
				if node.Author != nil {
					c.Author = node.Author.Login
				}
				comments = append(comments, c)
			}
		}
		return Result{Comments: comments}

	case CustomFields:
		fields := make(map[string]domain.FieldValue)
		if item.ProjectItems != nil {
			for _, pi := range item.ProjectItems.Nodes {
				for _, node := range pi.FieldValues.Nodes {
					fv, ok := node.toFieldValue()
					if !ok {
						continue
					}
					// First project wins when several define the same field
					key := domain.NormalizeFieldName(fv.Name)
					if _, exists := fields[key]; !exists {
						fields[key] = fv
					}
				}
			}
		}
		return Result{Fields: fields}

	case IssueFields:
		fields := make(map[string]domain.FieldValue)
		if item.IssueType != nil {
			fields["issue-type"] = domain.NewSingleChoiceValue("Issue Type", item.IssueType.Name, nil)
		}
		if item.Milestone != nil {
			fields["milestone"] = domain.NewTextValue("Milestone", item.Milestone.Title)
			fields["milestone-due"] = domain.NewDateValue("Milestone Due", item.Milestone.DueOn)
		}
		if item.Parent != nil {
			fields["parent"] = domain.NewTextValue("Parent", item.Parent.Title)
		}
		return Result{Fields: fields}
	}
	return Result{}
}

func (n fieldValueNode) toFieldValue() (domain.FieldValue, bool) {
	if n.Field == nil || n.Field.Name == "" {
		return domain.FieldValue{}, false
	}
	name := n.Field.Name
	switch n.Typename {
	case "ProjectV2ItemFieldTextValue":
		return domain.NewTextValue(name, deref(n.Text)), true
	case "ProjectV2ItemFieldSingleSelectValue":
		options := make([]string, 0, len(n.Field.Options))
		for _, o := range n.Field.Options {
			options = append(options, o.Name)
		}
		return domain.NewSingleChoiceValue(name, deref(n.Name), options), true
	case "ProjectV2ItemFieldDateValue":
		return domain.NewDateValue(name, deref(n.Date)), true
	case "ProjectV2ItemFieldNumberValue":
		return domain.NewNumberValue(name, n.Number), true
	case "ProjectV2ItemFieldIterationValue":
		return domain.NewSingleChoiceValue(name, deref(n.Title), nil), true
	}
	return domain.FieldValue{}, false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
