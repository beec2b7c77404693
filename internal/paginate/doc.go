// Package paginate walks a table ordered by a compound primary key, page by
// page, with keyset predicates instead of offsets.
//
// The cursor remembers the key of the last row it returned. The next page
// asks for rows strictly greater than that key. Without native row
// comparison, "greater than (c1, c2, ..., cN)" is rebuilt from N range scans
// joined with UNION ALL, where branch i fixes the first i key columns and
// requires column i+1 to be greater:
//
//	k1 = c1 AND k2 = c2 AND k3 > c3
//	k1 = c1 AND k2 > c2
//	k1 > c1
//
// Each branch is served by the primary key order. The union is sorted again
// and truncated to the page size. StrategyTuple replaces the union with a
// single (k1, ..., kN) > (c1, ..., cN) predicate on servers that support it.
package paginate
