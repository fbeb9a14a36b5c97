// Package scope decides which URLs belong to a discovery run.
//
// A URL is in scope when its registrable domain (the public-suffix aware
// "effective" domain, e.g. example.com for blog.example.com) equals that of
// the start URL. Links to binary or media files are excluded because they
// can never be feeds or lead to one. Optional glob patterns narrow crawling
// further.
package scope
