// Package pagination accumulates records from backward, cursor-paginated
// endpoints.
//
// Timeline endpoints return the newest items first and accept a max_id
// parameter to request older ones. Pages overlap at the boundary (max_id is
// inclusive) and may repeat items, so results are collected by id:
//
//	c := pagination.NewCollector[client.Record]()
//	for {
//		page := fetch(cursor)
//		if c.AddPage(page) == 0 {
//			break // nothing new, history exhausted
//		}
//		cursor, _ = c.Cursor()
//	}
//	records := c.Items()
//
// The collector keeps first-seen order and never shrinks, so its size can be
// used to detect the end of the history.
package pagination
