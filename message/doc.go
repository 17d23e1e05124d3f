/*
Package message offers the NETCONF message layer.

A message is one framed unit of a NETCONF session: a <hello>, <rpc>,
<rpc-reply> or <notification> document. Parse classifies a decoded frame,
and the Decode functions turn classified messages into Hello, RPC, Reply
and Notification values. The matching Encode functions produce the
payloads written by sessions.

A Reply is a tagged variant: ReplyOK, ReplyData, ReplyError or
ReplyNotification. Replies carrying only warning severity rpc-errors keep
their ok or data kind, with the warnings in Errors.
*/
package message
