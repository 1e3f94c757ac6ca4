// Package fix generates FIX 4.4 tag=value messages for the Phoenix
// execution venue. Session management (logon, sequencing, resend) belongs
// to the transport; this package only owns message construction.
package fix

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quantfabric/omsflow/internal/model"
)

// Standard FIX tag numbers used by the generator.
const (
	tagBeginString  = 8
	tagBodyLength   = 9
	tagMsgType      = 35
	tagSenderCompID = 49
	tagTargetCompID = 56
	tagSendingTime  = 52
	tagCheckSum     = 10

	tagAccount      = 1
	tagClOrdID      = 11
	tagOrderQty     = 38
	tagOrdType      = 40
	tagOrigClOrdID  = 41
	tagPrice        = 44
	tagSide         = 54
	tagSymbol       = 55
	tagTimeInForce  = 59
	tagSecurityType = 167
)

// Message types.
const (
	MsgTypeNewOrderSingle     = "D"
	MsgTypeCancelRequest      = "F"
	MsgTypeCancelReplace      = "G"
	MsgTypeOrderStatusRequest = "H"
)

const soh = "\x01"

// Field is a single tag=value pair.
type Field struct {
	Tag   int
	Value string
}

// Message is an ordered list of body fields plus the header identity.
type Message struct {
	MsgType string
	fields  []Field
}

// Set appends a body field.
func (m *Message) Set(tag int, value string) {
	m.fields = append(m.fields, Field{Tag: tag, Value: value})
}

// Get returns the first value for a tag, or "" when absent.
func (m *Message) Get(tag int) string {
	for _, f := range m.fields {
		if f.Tag == tag {
			return f.Value
		}
	}
	return ""
}

// Generator builds outbound FIX messages for one session identity.
type Generator struct {
	senderCompID string
	targetCompID string
	now          func() time.Time
}

// NewGenerator creates a generator for the given session comp IDs.
func NewGenerator(senderCompID, targetCompID string) *Generator {
	return &Generator{
		senderCompID: senderCompID,
		targetCompID: targetCompID,
		now:          time.Now,
	}
}

var orderTypeCodes = map[model.OrderType]string{
	model.OrderTypeMarket: "1",
	model.OrderTypeLimit:  "2",
	model.OrderTypeTWAP:   "U",
	model.OrderTypeVWAP:   "V",
}

var timeInForceCodes = map[model.TimeInForce]string{
	model.TimeInForceDay: "0",
	model.TimeInForceGTC: "1",
	model.TimeInForceIOC: "3",
	model.TimeInForceFOK: "4",
}

var securityTypeCodes = map[model.SecurityType]string{
	model.SecurityTypeEquity: "CS",
	model.SecurityTypeFuture: "FUT",
	model.SecurityTypeOption: "OPT",
	model.SecurityTypeForex:  "CURR",
}

func sideCode(side model.Side) string {
	if side == model.SideBuy {
		return "1"
	}
	return "2"
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// NewOrderSingle builds a NewOrderSingle (35=D) for the order. Numeric
// reference-data entries are passed through as raw tag=value fields, sorted
// by tag for a stable message layout.
func (g *Generator) NewOrderSingle(order *model.Order, account string, refdata map[string]string) (*Message, error) {
	ordType, ok := orderTypeCodes[order.Type]
	if !ok {
		return nil, fmt.Errorf("no FIX order type mapping for %q", order.Type)
	}

	msg := &Message{MsgType: MsgTypeNewOrderSingle}
	msg.Set(tagClOrdID, order.ClientOrderID)
	msg.Set(tagSymbol, order.Symbol)
	msg.Set(tagSide, sideCode(order.Side))
	msg.Set(tagOrderQty, formatQty(order.Quantity))
	msg.Set(tagOrdType, ordType)
	msg.Set(tagTimeInForce, timeInForceCodes[order.TimeInForce])
	msg.Set(tagAccount, account)
	msg.Set(tagSecurityType, securityTypeCodes[order.SecurityType])

	if order.Price != nil {
		msg.Set(tagPrice, formatQty(*order.Price))
	}

	for _, tag := range sortedRefdataTags(refdata) {
		msg.Set(tag, refdata[strconv.Itoa(tag)])
	}

	return msg, nil
}

// CancelRequest builds an OrderCancelRequest (35=F) referencing the
// original client order ID.
func (g *Generator) CancelRequest(order *model.Order, origClOrdID, account string) *Message {
	msg := &Message{MsgType: MsgTypeCancelRequest}
	msg.Set(tagClOrdID, order.ClientOrderID)
	msg.Set(tagOrigClOrdID, origClOrdID)
	msg.Set(tagSymbol, order.Symbol)
	msg.Set(tagSide, sideCode(order.Side))
	msg.Set(tagOrderQty, formatQty(order.Quantity))
	msg.Set(tagAccount, account)
	return msg
}

// CancelReplace builds an OrderCancelReplaceRequest (35=G). Only supplied
// overrides change the working order; nil keeps the original value.
func (g *Generator) CancelReplace(order *model.Order, origClOrdID, account string, newPrice, newQty *float64) *Message {
	qty := order.Quantity
	if newQty != nil {
		qty = *newQty
	}

	msg := &Message{MsgType: MsgTypeCancelReplace}
	msg.Set(tagClOrdID, order.ClientOrderID)
	msg.Set(tagOrigClOrdID, origClOrdID)
	msg.Set(tagSymbol, order.Symbol)
	msg.Set(tagSide, sideCode(order.Side))
	msg.Set(tagOrderQty, formatQty(qty))
	msg.Set(tagOrdType, orderTypeCodes[order.Type])
	msg.Set(tagTimeInForce, timeInForceCodes[order.TimeInForce])
	msg.Set(tagAccount, account)

	if newPrice != nil {
		msg.Set(tagPrice, formatQty(*newPrice))
	} else if order.Price != nil {
		msg.Set(tagPrice, formatQty(*order.Price))
	}

	return msg
}

// OrderStatusRequest builds an OrderStatusRequest (35=H) for a client
// order ID.
func (g *Generator) OrderStatusRequest(clOrdID, account string) *Message {
	msg := &Message{MsgType: MsgTypeOrderStatusRequest}
	msg.Set(tagClOrdID, clOrdID)
	msg.Set(tagAccount, account)
	return msg
}

// Encode renders the message as a FIX 4.4 byte stream with computed
// BodyLength(9) and CheckSum(10).
func (g *Generator) Encode(msg *Message) []byte {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("%d=%s%s", tagMsgType, msg.MsgType, soh))
	body.WriteString(fmt.Sprintf("%d=%s%s", tagSenderCompID, g.senderCompID, soh))
	body.WriteString(fmt.Sprintf("%d=%s%s", tagTargetCompID, g.targetCompID, soh))
	body.WriteString(fmt.Sprintf("%d=%s%s", tagSendingTime, g.now().UTC().Format("20060102-15:04:05.000"), soh))
	for _, f := range msg.fields {
		body.WriteString(fmt.Sprintf("%d=%s%s", f.Tag, f.Value, soh))
	}

	head := fmt.Sprintf("%d=FIX.4.4%s%d=%d%s", tagBeginString, soh, tagBodyLength, body.Len(), soh)
	payload := head + body.String()

	var sum int
	for i := 0; i < len(payload); i++ {
		sum += int(payload[i])
	}
	return []byte(payload + fmt.Sprintf("%d=%03d%s", tagCheckSum, sum%256, soh))
}

// sortedRefdataTags filters reference-data keys down to numeric FIX tags.
func sortedRefdataTags(refdata map[string]string) []int {
	tags := make([]int, 0, len(refdata))
	for k := range refdata {
		if tag, err := strconv.Atoi(k); err == nil {
			tags = append(tags, tag)
		}
	}
	sort.Ints(tags)
	return tags
}
