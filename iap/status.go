package iap

import "fmt"

// StatusCode is the vendor's order status code carried by resolved purchases
// and by backend results.
type StatusCode int

const (
	StatusFailed          StatusCode = -1
	StatusSuccess         StatusCode = 0
	StatusCancelled       StatusCode = 60000
	StatusParamError      StatusCode = 60001
	StatusNetError        StatusCode = 60005
	StatusNotLoggedIn     StatusCode = 60050
	StatusProductOwned    StatusCode = 60051
	StatusProductNotOwned StatusCode = 60052
	StatusProductConsumed StatusCode = 60053
)

func (c StatusCode) String() string {
	switch c {
	case StatusFailed:
		return "failed"
	case StatusSuccess:
		return "succeeded"
	case StatusCancelled:
		return "cancelled"
	case StatusParamError:
		return "param_error"
	case StatusNetError:
		return "net_error"
	case StatusNotLoggedIn:
		return "not_logged_in"
	case StatusProductOwned:
		return "already_owned"
	case StatusProductNotOwned:
		return "not_owned"
	case StatusProductConsumed:
		return "already_consumed"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}
