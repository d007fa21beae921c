package database

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/models"
)

// Conditional single-statement wallet and position updates. Each update
// carries its own predicate so the check and the write happen in one
// statement; a zero rows-affected result means the predicate did not
// hold against the current row state.

// DebitCash decrements cash_balance only if the wallet holds at least
// amount. Returns false when the balance was insufficient.
func DebitCash(tx *gorm.DB, walletID uint, amount decimal.Decimal) (bool, error) {
	res := tx.Model(&models.Wallet{}).
		Where("id = ? AND cash_balance >= ?", walletID, amount).
		UpdateColumn("cash_balance", gorm.Expr("cash_balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DebitAvailableCash decrements cash_balance only if the wallet holds
// at least amount beyond its blocked collateral.
func DebitAvailableCash(tx *gorm.DB, walletID uint, amount decimal.Decimal) (bool, error) {
	res := tx.Model(&models.Wallet{}).
		Where("id = ? AND cash_balance - blocked_collateral >= ?", walletID, amount).
		UpdateColumn("cash_balance", gorm.Expr("cash_balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreditCash increments cash_balance unconditionally.
func CreditCash(tx *gorm.DB, walletID uint, amount decimal.Decimal) error {
	res := tx.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		UpdateColumn("cash_balance", gorm.Expr("cash_balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// BlockCollateral reserves amount against the wallet, only if that much
// cash is available beyond the collateral already blocked.
func BlockCollateral(tx *gorm.DB, walletID uint, amount decimal.Decimal) (bool, error) {
	res := tx.Model(&models.Wallet{}).
		Where("id = ? AND cash_balance - blocked_collateral >= ?", walletID, amount).
		UpdateColumn("blocked_collateral", gorm.Expr("blocked_collateral + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseCollateral returns previously blocked collateral to the
// available balance.
func ReleaseCollateral(tx *gorm.DB, walletID uint, amount decimal.Decimal) error {
	res := tx.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		UpdateColumn("blocked_collateral", gorm.Expr("blocked_collateral - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdatePositionCAS applies patch to a position only if its quantity
// and average price still match the snapshot previously read. Returns
// false when another writer got there first.
func UpdatePositionCAS(tx *gorm.DB, snapshot *models.Position, patch map[string]interface{}) (bool, error) {
	res := tx.Model(&models.Position{}).
		Where("id = ? AND quantity = ? AND average_price = ?",
			snapshot.ID, snapshot.Quantity, snapshot.AveragePrice).
		Updates(patch)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeletePositionCAS removes a position only if its quantity still
// matches the snapshot. Positions are hard-deleted: a closed position
// must not shadow the (wallet_id, asset_id) unique index for future
// trades of the same asset.
func DeletePositionCAS(tx *gorm.DB, snapshot *models.Position) (bool, error) {
	res := tx.Unscoped().
		Where("id = ? AND quantity = ?", snapshot.ID, snapshot.Quantity).
		Delete(&models.Position{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
