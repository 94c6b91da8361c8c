// Package pagination walks every page of a feed search in order.
//
// Pages are requested strictly one after another: whether another page is
// needed depends on the page count reported by the page just fetched. Each
// request goes through a retry.Policy, and a fixed pause is inserted before
// every tenth page to stay clear of the feed's rate limiter.
//
// Example usage:
//
//	p := pagination.New(client, pagination.DefaultConfig(funda.Classify))
//	listings, err := p.FetchAll(ctx, "/amsterdam/tuin/")
//
// The paginator:
//   - Starts at page 1 and stops when a page reports no total, or the last page is reached
//   - Keeps listings in feed order across pages
//   - Pauses before pages 10, 20, 30, ...
//   - Returns no listings at all when any page fails after retries
package pagination
