package gh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/query"
)

// searchPageSize is the largest page the search API returns.
const searchPageSize = 100

const issueSearchQuery = `
	query($q: String!, $first: Int!, $after: String) {
		search(query: $q, type: ISSUE, first: $first, after: $after) {
			pageInfo {
				hasNextPage
				endCursor
			}
			nodes {
				__typename
				... on Issue {
					number
					title
					body
					url
					state
					createdAt
					updatedAt
					closedAt
					author {
						login
					}
					repository {
						name
						owner {
							login
						}
					}
					issueType {
						name
					}
					labels(first: 20) {
						nodes {
							name
						}
					}
					assignees(first: 20) {
						nodes {
							login
						}
					}
				}
			}
		}
	}
`

const discussionSearchQuery = `
	query($q: String!, $first: Int!, $after: String) {
		search(query: $q, type: DISCUSSION, first: $first, after: $after) {
			pageInfo {
				hasNextPage
				endCursor
			}
			nodes {
				__typename
				... on Discussion {
					number
					title
					body
					url
					closed
					createdAt
					updatedAt
					closedAt
					author {
						login
					}
					repository {
						name
						owner {
							login
						}
					}
					category {
						name
					}
					labels(first: 20) {
						nodes {
							name
						}
					}
				}
			}
		}
	}
`

// searchNode is the union of the Issue and Discussion selections.
type searchNode struct {
	Typename  string     `json:"__typename"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	URL       string     `json:"url"`
	State     string     `json:"state"`
	Closed    bool       `json:"closed"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	Author    *struct {
		Login string `json:"login"`
	} `json:"author"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	IssueType *struct {
		Name string `json:"name"`
	} `json:"issueType"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
	Labels *struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	Assignees *struct {
		Nodes []struct {
			Login string `json:"login"`
		} `json:"nodes"`
	} `json:"assignees"`
}

// ListParams selects the items to list.
type ListParams struct {
	Search string          // Search qualifiers, e.g. "repo:acme/widgets is:open"
	Kind   domain.ItemKind // KindIssue (default) or KindDiscussion
	Limit  int             // Maximum items; 0 means every page
}

// ListItems pages through the search API and returns the matching items
// without comments or custom fields.
func (c *Client) ListItems(ctx context.Context, params ListParams) ([]*domain.Item, error) {
	kind := params.Kind
	if kind == "" {
		kind = domain.KindIssue
	}
	gql := issueSearchQuery
	search := params.Search
	if kind == domain.KindDiscussion {
		gql = discussionSearchQuery
	} else if !strings.Contains(search, "is:issue") && !strings.Contains(search, "type:issue") {
		// ISSUE search also matches pull requests
		search = strings.TrimSpace(search + " is:issue")
	}

	var items []*domain.Item
	var cursor *string
	for {
		first := searchPageSize
		if params.Limit > 0 && params.Limit-len(items) < first {
			first = params.Limit - len(items)
		}

		var resp struct {
			Search struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []searchNode `json:"nodes"`
			} `json:"search"`
		}
		vars := map[string]interface{}{"q": search, "first": first, "after": cursor}
		if err := c.makeRequest(ctx, gql, vars, &resp); err != nil {
			return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
		}

		for _, node := range resp.Search.Nodes {
			if item, ok := node.toItem(kind); ok {
				items = append(items, item)
			}
		}
		c.log.Debug("Listed page", "kind", string(kind), "items", len(items))

		page := resp.Search.PageInfo
		if !page.HasNextPage || page.EndCursor == "" || (params.Limit > 0 && len(items) >= params.Limit) {
			break
		}
		end := page.EndCursor
		cursor = &end
	}
	return items, nil
}

func (n searchNode) toItem(kind domain.ItemKind) (*domain.Item, bool) {
	// Pull requests and empty nodes come back without the fragment fields
	if n.Number == 0 || (kind == domain.KindIssue && n.Typename != "Issue") ||
		(kind == domain.KindDiscussion && n.Typename != "Discussion") {
		return nil, false
	}

	item := &domain.Item{
		Key: domain.ItemKey{
			Organization: n.Repository.Owner.Login,
			Repository:   n.Repository.Name,
			Number:       n.Number,
		},
		Kind:      kind,
		Title:     n.Title,
		Body:      n.Body,
		URL:       n.URL,
		State:     strings.ToLower(n.State),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		ClosedAt:  n.ClosedAt,
	}
	if kind == domain.KindDiscussion {
		item.State = domain.StateOpen
		if n.Closed {
			item.State = domain.StateClosed
		}
	}
	// Handle deleted users (author is nil)
	if n.Author != nil {
		item.Author = n.Author.Login
	}
	if n.IssueType != nil {
		item.Type = n.IssueType.Name
	}
	if n.Category != nil {
		item.Type = n.Category.Name
	}
	if n.Labels != nil {
		item.Labels = make([]string, 0, len(n.Labels.Nodes))
		for _, l := range n.Labels.Nodes {
			item.Labels = append(item.Labels, l.Name)
		}
	}
	if n.Assignees != nil {
		item.Assignees = make([]string, 0, len(n.Assignees.Nodes))
		for _, a := range n.Assignees.Nodes {
			item.Assignees = append(item.Assignees, a.Login)
		}
	}
	return item, true
}

// ProjectViewFilter loads a saved project view. The owner may be an
// organization or a user.
func (c *Client) ProjectViewFilter(ctx context.Context, owner string, projectNumber, viewNumber int) (domain.View, error) {
	const gql = `
		query($login: String!, $project: Int!, $view: Int!) {
			organization(login: $login) {
				projectV2(number: $project) {
					title
					view(number: $view) {
						name
						filter
					}
				}
			}
			user(login: $login) {
				projectV2(number: $project) {
					title
					view(number: $view) {
						name
						filter
					}
				}
			}
		}
	`
	type projectNode struct {
		ProjectV2 *struct {
			Title string `json:"title"`
			View  *struct {
				Name   string `json:"name"`
				Filter string `json:"filter"`
			} `json:"view"`
		} `json:"projectV2"`
	}
	var resp struct {
		Organization *projectNode `json:"organization"`
		User         *projectNode `json:"user"`
	}
	vars := map[string]interface{}{"login": owner, "project": projectNumber, "view": viewNumber}
	if err := c.makeRequest(ctx, gql, vars, &resp); err != nil {
		return domain.View{}, fmt.Errorf("failed to get project view: %w", err)
	}

	// Check organization first
	node := resp.Organization
	if node == nil || node.ProjectV2 == nil {
		node = resp.User
	}
	if node == nil || node.ProjectV2 == nil {
		return domain.View{}, fmt.Errorf("project %s/%d not found", owner, projectNumber)
	}
	if node.ProjectV2.View == nil {
		return domain.View{}, fmt.Errorf("view %d not found in project %s/%d", viewNumber, owner, projectNumber)
	}

	return domain.View{
		Project: domain.Project{Owner: owner, Number: projectNumber, Title: node.ProjectV2.Title},
		Number:  viewNumber,
		Name:    node.ProjectV2.View.Name,
		Filter:  node.ProjectV2.View.Filter,
	}, nil
}

// CurrentActor returns the authenticated user's login. The first successful
// lookup is cached for the life of the client.
func (c *Client) CurrentActor(ctx context.Context) (string, error) {
	c.actorMu.Lock()
	defer c.actorMu.Unlock()
	if c.actor != "" {
		return c.actor, nil
	}

	var resp struct {
		Viewer struct {
			Login string `json:"login"`
		} `json:"viewer"`
	}
	if err := c.makeRequest(ctx, `query { viewer { login } }`, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get viewer: %w", err)
	}
	if resp.Viewer.Login == "" {
		return "", errors.New("viewer login is empty")
	}
	c.actor = resp.Viewer.Login
	return c.actor, nil
}

// ActorFunc adapts CurrentActor for the query parser's @me resolution.
func (c *Client) ActorFunc(ctx context.Context) query.ActorFunc {
	return func() (string, error) {
		return c.CurrentActor(ctx)
	}
}
