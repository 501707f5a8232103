package bip70

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequestRoundTrip(t *testing.T) {
	recurring := &RecurringPaymentDetails{
		MerchantID:     "blockbill",
		SubscriptionID: []byte("f4086d17-3e45-4ce4-ae12-ae5de4d2a5d1"),
		Contracts: []RecurringPaymentContract{
			{
				ContractID:           []byte("98e4a5c2-77c0-4bd1-b2c2-2b58f7d0e3da"),
				PollingURL:           "http://localhost:4000/polling?contractId=98e4a5c2",
				Starts:               1700000000000,
				Ends:                 1702592000000,
				PaymentFrequencyType: FrequencyMonthly,
				MaxPaymentPerPeriod:  2500000,
				MaxPaymentAmount:     2500000,
			},
			{
				ContractID: []byte("0b54f8a1-9a10-49a7-bd4c-51f1e42b4c7e"),
				PollingURL: "http://localhost:4000/polling?contractId=0b54f8a1",
				Starts:     1702592000000,
			},
		},
	}

	details := &PaymentDetails{
		Network:                           "test",
		Outputs:                           []Output{{Amount: 2500000, Script: []byte{0x76, 0xa9, 0x14}}},
		Time:                              1700000000000,
		Expires:                           1700086400000,
		Memo:                              "Subscription gold-monthly",
		PaymentURL:                        "http://localhost:4000/payment",
		MerchantData:                      []byte("98e4a5c2-77c0-4bd1-b2c2-2b58f7d0e3da"),
		SerializedRecurringPaymentDetails: recurring.Marshal(),
	}

	request := &PaymentRequest{
		PaymentDetailsVersion:    1,
		PkiType:                  "none",
		SerializedPaymentDetails: details.Marshal(),
	}

	var decoded PaymentRequest
	require.NoError(t, decoded.Unmarshal(request.Marshal()))
	assert.Equal(t, uint32(1), decoded.PaymentDetailsVersion)
	assert.Equal(t, "none", decoded.PkiType)

	gotDetails, err := decoded.Details()
	require.NoError(t, err)
	assert.Equal(t, details.Network, gotDetails.Network)
	assert.Equal(t, details.Memo, gotDetails.Memo)
	assert.Equal(t, details.PaymentURL, gotDetails.PaymentURL)
	assert.Equal(t, details.MerchantData, gotDetails.MerchantData)
	require.Len(t, gotDetails.Outputs, 1)
	assert.Equal(t, uint64(2500000), gotDetails.Outputs[0].Amount)
	assert.Equal(t, []byte{0x76, 0xa9, 0x14}, gotDetails.Outputs[0].Script)

	gotRecurring, err := gotDetails.RecurringDetails()
	require.NoError(t, err)
	require.NotNil(t, gotRecurring)
	assert.Equal(t, "blockbill", gotRecurring.MerchantID)
	require.Len(t, gotRecurring.Contracts, 2)
	assert.Equal(t, FrequencyMonthly, gotRecurring.Contracts[0].PaymentFrequencyType)
	assert.Equal(t, uint64(2500000), gotRecurring.Contracts[0].MaxPaymentPerPeriod)
	assert.Equal(t, recurring.Contracts[1].ContractID, gotRecurring.Contracts[1].ContractID)
}

func TestPaymentAndACKRoundTrip(t *testing.T) {
	payment := &Payment{
		MerchantData: []byte("98e4a5c2-77c0-4bd1-b2c2-2b58f7d0e3da"),
		Transactions: [][]byte{{0x01, 0x00, 0x00, 0x00}},
		RefundTo:     []Output{{Amount: 100, Script: []byte{0xac}}},
		Memo:         "payer memo",
	}

	var decoded Payment
	require.NoError(t, decoded.Unmarshal(payment.Marshal()))
	assert.Equal(t, payment.MerchantData, decoded.MerchantData)
	require.Len(t, decoded.Transactions, 1)
	assert.Equal(t, payment.Transactions[0], decoded.Transactions[0])
	require.Len(t, decoded.RefundTo, 1)
	assert.Equal(t, uint64(100), decoded.RefundTo[0].Amount)
	assert.Equal(t, "payer memo", decoded.Memo)

	ack := &PaymentACK{Payment: payment, Memo: "Billing payment id abc"}
	var decodedACK PaymentACK
	require.NoError(t, decodedACK.Unmarshal(ack.Marshal()))
	require.NotNil(t, decodedACK.Payment)
	assert.Equal(t, payment.MerchantData, decodedACK.Payment.MerchantData)
	assert.Equal(t, ack.Memo, decodedACK.Memo)
}

func TestNoRecurringDetails(t *testing.T) {
	details := &PaymentDetails{Network: "test", Memo: "nothing to pay"}

	var decoded PaymentDetails
	require.NoError(t, decoded.Unmarshal(details.Marshal()))

	recurring, err := decoded.RecurringDetails()
	require.NoError(t, err)
	assert.Nil(t, recurring)
	assert.Empty(t, decoded.Outputs)
}

func TestUnmarshalGarbage(t *testing.T) {
	var request PaymentRequest
	assert.Error(t, request.Unmarshal([]byte{0xff, 0xff, 0xff}))
}
