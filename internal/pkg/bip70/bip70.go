// Package bip70 implements the BIP70 payment protocol messages together with
// the recurring-payment extension used for contract negotiation. Messages are
// encoded with the protobuf wire format; field numbers are documented in
// payments.proto.
package bip70

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MIME types used on the HTTP surface of the protocol.
const (
	MimePaymentRequest = "application/bitcoin-paymentrequest"
	MimePayment        = "application/bitcoin-payment"
	MimePaymentACK     = "application/bitcoin-paymentack"
)

// PaymentFrequencyType spells out how often a recurring payment is due.
type PaymentFrequencyType int32

const (
	FrequencyMonthly   PaymentFrequencyType = 1
	FrequencyQuarterly PaymentFrequencyType = 2
	FrequencyAnnual    PaymentFrequencyType = 3
)

func (f PaymentFrequencyType) String() string {
	switch f {
	case FrequencyMonthly:
		return "MONTHLY"
	case FrequencyQuarterly:
		return "QUARTERLY"
	case FrequencyAnnual:
		return "ANNUAL"
	default:
		return fmt.Sprintf("PaymentFrequencyType(%d)", int32(f))
	}
}

// Output is a requested payment output: an amount in satoshis and the script
// it must be paid to.
type Output struct {
	Amount uint64
	Script []byte
}

// PaymentDetails is the inner payload of a PaymentRequest.
type PaymentDetails struct {
	Network                           string
	Outputs                           []Output
	Time                              uint64
	Expires                           uint64
	Memo                              string
	PaymentURL                        string
	MerchantData                      []byte
	SerializedRecurringPaymentDetails []byte
}

// PaymentRequest is the outer, optionally signed envelope. This implementation
// only produces pki_type "none"; signing is out of scope.
type PaymentRequest struct {
	PaymentDetailsVersion    uint32
	PkiType                  string
	PkiData                  []byte
	SerializedPaymentDetails []byte
	Signature                []byte
}

// RecurringPaymentContract describes one negotiated contract segment.
type RecurringPaymentContract struct {
	ContractID           []byte
	PollingURL           string
	Starts               uint64
	Ends                 uint64
	PaymentFrequencyType PaymentFrequencyType
	MaxPaymentPerPeriod  uint64
	MaxPaymentAmount     uint64
}

// RecurringPaymentDetails carries the contract segments for a subscription.
type RecurringPaymentDetails struct {
	MerchantID     string
	SubscriptionID []byte
	Contracts      []RecurringPaymentContract
}

// Payment is submitted by the payer and carries the signed raw transactions.
type Payment struct {
	MerchantData []byte
	Transactions [][]byte
	RefundTo     []Output
	Memo         string
}

// PaymentACK acknowledges a submitted Payment.
type PaymentACK struct {
	Payment *Payment
	Memo    string
}

// Details decodes the serialized PaymentDetails payload.
func (m *PaymentRequest) Details() (*PaymentDetails, error) {
	d := &PaymentDetails{}
	if err := d.Unmarshal(m.SerializedPaymentDetails); err != nil {
		return nil, err
	}
	return d, nil
}

// RecurringDetails decodes the serialized recurring extension, or returns nil
// when the request carries none.
func (m *PaymentDetails) RecurringDetails() (*RecurringPaymentDetails, error) {
	if len(m.SerializedRecurringPaymentDetails) == 0 {
		return nil, nil
	}
	d := &RecurringPaymentDetails{}
	if err := d.Unmarshal(m.SerializedRecurringPaymentDetails); err != nil {
		return nil, err
	}
	return d, nil
}

func (m *Output) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Amount)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Script)
	return b
}

func (m *Output) Unmarshal(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.Amount = v.varint
		case 2:
			m.Script = v.bytes
		}
		return nil
	})
}

func (m *PaymentDetails) Marshal() []byte {
	var b []byte
	if m.Network != "" {
		b = appendString(b, 1, m.Network)
	}
	for i := range m.Outputs {
		b = appendMessage(b, 2, m.Outputs[i].Marshal())
	}
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Time)
	if m.Expires != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Expires)
	}
	if m.Memo != "" {
		b = appendString(b, 5, m.Memo)
	}
	if m.PaymentURL != "" {
		b = appendString(b, 6, m.PaymentURL)
	}
	if len(m.MerchantData) > 0 {
		b = appendBytes(b, 7, m.MerchantData)
	}
	if len(m.SerializedRecurringPaymentDetails) > 0 {
		b = appendBytes(b, 8, m.SerializedRecurringPaymentDetails)
	}
	return b
}

func (m *PaymentDetails) Unmarshal(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.Network = string(v.bytes)
		case 2:
			var out Output
			if err := out.Unmarshal(v.bytes); err != nil {
				return err
			}
			m.Outputs = append(m.Outputs, out)
		case 3:
			m.Time = v.varint
		case 4:
			m.Expires = v.varint
		case 5:
			m.Memo = string(v.bytes)
		case 6:
			m.PaymentURL = string(v.bytes)
		case 7:
			m.MerchantData = v.bytes
		case 8:
			m.SerializedRecurringPaymentDetails = v.bytes
		}
		return nil
	})
}

func (m *PaymentRequest) Marshal() []byte {
	var b []byte
	if m.PaymentDetailsVersion != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.PaymentDetailsVersion))
	}
	if m.PkiType != "" {
		b = appendString(b, 2, m.PkiType)
	}
	if len(m.PkiData) > 0 {
		b = appendBytes(b, 3, m.PkiData)
	}
	b = appendBytes(b, 4, m.SerializedPaymentDetails)
	if len(m.Signature) > 0 {
		b = appendBytes(b, 5, m.Signature)
	}
	return b
}

func (m *PaymentRequest) Unmarshal(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.PaymentDetailsVersion = uint32(v.varint)
		case 2:
			m.PkiType = string(v.bytes)
		case 3:
			m.PkiData = v.bytes
		case 4:
			m.SerializedPaymentDetails = v.bytes
		case 5:
			m.Signature = v.bytes
		}
		return nil
	})
}

func (m *RecurringPaymentContract) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.ContractID)
	if m.PollingURL != "" {
		b = appendString(b, 2, m.PollingURL)
	}
	if m.Starts != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Starts)
	}
	if m.Ends != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Ends)
	}
	if m.PaymentFrequencyType != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.PaymentFrequencyType))
	}
	if m.MaxPaymentPerPeriod != 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, m.MaxPaymentPerPeriod)
	}
	if m.MaxPaymentAmount != 0 {
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, m.MaxPaymentAmount)
	}
	return b
}

func (m *RecurringPaymentContract) Unmarshal(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.ContractID = v.bytes
		case 2:
			m.PollingURL = string(v.bytes)
		case 3:
			m.Starts = v.varint
		case 4:
			m.Ends = v.varint
		case 5:
			m.PaymentFrequencyType = PaymentFrequencyType(v.varint)
		case 6:
			m.MaxPaymentPerPeriod = v.varint
		case 7:
			m.MaxPaymentAmount = v.varint
		}
		return nil
	})
}

func (m *RecurringPaymentDetails) Marshal() []byte {
	var b []byte
	if m.MerchantID != "" {
		b = appendString(b, 1, m.MerchantID)
	}
	if len(m.SubscriptionID) > 0 {
		b = appendBytes(b, 2, m.SubscriptionID)
	}
	for i := range m.Contracts {
		b = appendMessage(b, 3, m.Contracts[i].Marshal())
	}
	return b
}

func (m *RecurringPaymentDetails) Unmarshal(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.MerchantID = string(v.bytes)
		case 2:
			m.SubscriptionID = v.bytes
		case 3:
			var c RecurringPaymentContract
			if err := c.Unmarshal(v.bytes); err != nil {
				return err
			}
			m.Contracts = append(m.Contracts, c)
		}
		return nil
	})
}

func (m *Payment) Marshal() []byte {
	var b []byte
	if len(m.MerchantData) > 0 {
		b = appendBytes(b, 1, m.MerchantData)
	}
	for _, tx := range m.Transactions {
		b = appendBytes(b, 2, tx)
	}
	for i := range m.RefundTo {
		b = appendMessage(b, 3, m.RefundTo[i].Marshal())
	}
	if m.Memo != "" {
		b = appendString(b, 4, m.Memo)
	}
	return b
}

func (m *Payment) Unmarshal(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.MerchantData = v.bytes
		case 2:
			m.Transactions = append(m.Transactions, v.bytes)
		case 3:
			var out Output
			if err := out.Unmarshal(v.bytes); err != nil {
				return err
			}
			m.RefundTo = append(m.RefundTo, out)
		case 4:
			m.Memo = string(v.bytes)
		}
		return nil
	})
}

func (m *PaymentACK) Marshal() []byte {
	var b []byte
	if m.Payment != nil {
		b = appendMessage(b, 1, m.Payment.Marshal())
	}
	if m.Memo != "" {
		b = appendString(b, 2, m.Memo)
	}
	return b
}

func (m *PaymentACK) Unmarshal(data []byte) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			p := &Payment{}
			if err := p.Unmarshal(v.bytes); err != nil {
				return err
			}
			m.Payment = p
		case 2:
			m.Memo = string(v.bytes)
		}
		return nil
	})
}

// fieldValue carries the decoded value of one wire field. Exactly one of the
// members is meaningful, depending on the wire type.
type fieldValue struct {
	varint uint64
	bytes  []byte
}

// consumeFields walks every field of a wire-encoded message, decoding varint
// and length-delimited values and skipping anything else (unknown fields are
// tolerated, matching protobuf semantics).
func consumeFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v fieldValue) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		var v fieldValue
		switch typ {
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			v.varint = val
			data = data[n:]
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			// Copy out of the input buffer so callers may retain the value.
			v.bytes = append([]byte(nil), val...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}

		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
