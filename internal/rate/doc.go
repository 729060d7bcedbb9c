// Package rate provides a Redis-backed fixed-window limiter used to throttle
// the token endpoints of authd.
//
// # Window semantics
//
// INCR, then EXPIRE on the first hit of a window. Keys are
// {Prefix}:{scope}:{id}, e.g. rl:login:203.0.113.7.
package rate
