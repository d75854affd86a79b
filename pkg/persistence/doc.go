// Package persistence stores client preferences that must survive
// restarts.
//
// The only preference kept today is the last device token registered for
// each push notification application, used to send a token refresh instead
// of a plain registration when the platform hands out a new token.
package persistence
