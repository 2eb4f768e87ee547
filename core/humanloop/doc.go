// Package humanloop queues turns whose output a person has to supply by
// hand, typically by pasting an answer copied from a web chat.
//
// Each request becomes a ticket that owns its own resolver slot. At most
// one ticket is pending (shown to the user) at a time; later requests wait
// in FIFO order. A pending ticket the user dismisses becomes suspended and
// keeps its resolver until it is answered, cancelled, or cleared.
package humanloop
