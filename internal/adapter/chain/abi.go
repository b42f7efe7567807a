package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	methodCreate       = "createLoan"
	methodFund         = "fundLoan"
	methodDisburse     = "disburse"
	methodRepay        = "repay"
	methodGetLoan      = "getLoan"
	methodBorrowerLoan = "getBorrowerLoans"
	eventLoanCreated   = "LoanCreated"
)

// MinimalABI covers the escrow contract surface used by the executor.
const MinimalABI = `[
 {"type":"function","name":"createLoan","stateMutability":"nonpayable",
  "inputs":[{"name":"_principal","type":"uint256"},{"name":"_termDays","type":"uint256"},
   {"name":"_interestRate","type":"uint256"},{"name":"_kycHash","type":"bytes32"},
   {"name":"_explanationHash","type":"bytes32"},{"name":"_riskCategory","type":"uint8"},
   {"name":"_probabilityOfDefault","type":"uint256"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"fundLoan","stateMutability":"payable","inputs":[{"name":"_loanId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"disburse","stateMutability":"nonpayable","inputs":[{"name":"_loanId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"repay","stateMutability":"payable","inputs":[{"name":"_loanId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getLoan","stateMutability":"view","inputs":[{"name":"_loanId","type":"uint256"}],
  "outputs":[{"name":"","type":"tuple","components":[
   {"name":"loanId","type":"uint256"},{"name":"borrower","type":"address"},
   {"name":"principal","type":"uint256"},{"name":"interestRate","type":"uint256"},
   {"name":"termDays","type":"uint256"},{"name":"totalRepayment","type":"uint256"},
   {"name":"amountRepaid","type":"uint256"},{"name":"status","type":"uint8"},
   {"name":"kycHash","type":"bytes32"},{"name":"explanationHash","type":"bytes32"}]}]},
 {"type":"function","name":"getBorrowerLoans","stateMutability":"view","inputs":[{"name":"_borrower","type":"address"}],
  "outputs":[{"name":"","type":"uint256[]"}]},
 {"type":"event","name":"LoanCreated","anonymous":false,"inputs":[
  {"name":"loanId","type":"uint256","indexed":true},
  {"name":"borrower","type":"address","indexed":true},
  {"name":"principal","type":"uint256","indexed":false}]}
]`

var requiredMethods = []string{methodCreate, methodFund, methodDisburse, methodRepay, methodGetLoan}

// LoadABI parses the contract ABI at path, accepting either a build artifact
// ({"abi": [...]}) or a bare ABI array. An empty path selects MinimalABI.
func LoadABI(path string) (abi.ABI, error) {
	raw := []byte(MinimalABI)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("chain: read abi: %w", err)
		}
		raw = artifactABI(b)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: parse abi: %w", err)
	}
	for _, m := range requiredMethods {
		if _, ok := parsed.Methods[m]; !ok {
			return abi.ABI{}, fmt.Errorf("chain: abi lacks method %s", m)
		}
	}
	return parsed, nil
}

func artifactABI(b []byte) []byte {
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(b, &artifact); err == nil && len(artifact.ABI) > 0 {
		return artifact.ABI
	}
	return b
}

// toBytes32 encodes a reference for a bytes32 argument: 0x-prefixed hex is
// decoded (left padded, or cropped to its last 32 bytes); any other text is
// hashed with keccak256.
func toBytes32(v string) [32]byte {
	if strings.HasPrefix(v, "0x") && len(v) >= 4 {
		s := v[2:]
		if len(s)%2 == 1 {
			s = "0" + s
		}
		if b, err := hex.DecodeString(s); err == nil {
			return common.BytesToHash(b)
		}
	}
	return crypto.Keccak256Hash([]byte(v))
}
